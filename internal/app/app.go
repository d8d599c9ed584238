package app

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"gatehouse/internal/app/bootstrap"
	"gatehouse/internal/app/server"
	"gatehouse/internal/config"
	"gatehouse/internal/support"
)

const defaultPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	portFlag := flag.Int("port", defaultPort, "Port for the API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	if *productionFlag {
		log.SetLevel(log.InfoLevel)
	}

	port := resolvePort("PORT", *portFlag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := bootstrap.Setup(ctx)

	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	return server.OpenRoutes(port, deps)
}

func resolvePort(envKey string, fallback int) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return fallback
	}

	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return fallback
	}
	return port
}
