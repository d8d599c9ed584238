package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"gatehouse/internal/auth"
	"gatehouse/internal/database"
	"gatehouse/internal/detector"
	"gatehouse/internal/protection"
	"gatehouse/internal/protection/blockstore"
)

// Package-level handler dependencies, set once by OpenRoutes before the
// listener starts.
var (
	pipeline   *protection.Orchestrator
	blocks     *blockstore.Store
	blockRepo  *database.BlockRepo
	attempts   *database.AttemptRepo
	alertsRepo *database.AlertRepo
	patterns   *detector.Detector
)

type Dependencies struct {
	Pipeline   *protection.Orchestrator
	Blocks     *blockstore.Store
	BlockRepo  *database.BlockRepo
	Attempts   *database.AttemptRepo
	AlertsRepo *database.AlertRepo
	Detector   *detector.Detector
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func OpenRoutes(port int, deps Dependencies) error {
	pipeline = deps.Pipeline
	blocks = deps.Blocks
	blockRepo = deps.BlockRepo
	attempts = deps.Attempts
	alertsRepo = deps.AlertsRepo
	patterns = deps.Detector

	router := http.NewServeMux()
	router.HandleFunc("POST /register", registerUser)
	router.HandleFunc("GET /register/status", registrationStatus)

	router.Handle("GET /admin/config", auth.IsAdmin(http.HandlerFunc(getProtectionConfig)))
	router.Handle("PUT /admin/config", auth.IsAdmin(http.HandlerFunc(saveProtectionConfig)))
	router.Handle("POST /admin/registration", auth.IsAdmin(http.HandlerFunc(toggleRegistration)))

	router.Handle("GET /admin/blocks", auth.IsAdmin(http.HandlerFunc(listBlocks)))
	router.Handle("POST /admin/blocks", auth.IsAdmin(http.HandlerFunc(blockIP)))
	router.Handle("DELETE /admin/blocks/{ip}", auth.IsAdmin(http.HandlerFunc(unblockIP)))

	router.Handle("GET /admin/domains", auth.IsAdmin(http.HandlerFunc(listDomains)))
	router.Handle("POST /admin/domains/blacklist", auth.IsAdmin(http.HandlerFunc(blacklistDomain)))
	router.Handle("POST /admin/domains/whitelist", auth.IsAdmin(http.HandlerFunc(whitelistDomain)))
	router.Handle("DELETE /admin/domains/{domain}", auth.IsAdmin(http.HandlerFunc(removeDomain)))

	router.Handle("GET /admin/attempts", auth.IsAdmin(http.HandlerFunc(listAttempts)))
	router.Handle("GET /admin/metrics", auth.IsAdmin(http.HandlerFunc(getMetrics)))

	router.Handle("GET /admin/alerts", auth.IsAdmin(http.HandlerFunc(listAlerts)))
	router.Handle("POST /admin/alerts/{id}/ack", auth.IsAdmin(http.HandlerFunc(acknowledgeAlert)))
	router.Handle("GET /admin/patterns", auth.IsAdmin(http.HandlerFunc(scanPatterns)))

	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(router),
	}

	log.Infof("Starting gatehouse on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
