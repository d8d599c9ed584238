package bootstrap

import (
	"context"

	"github.com/charmbracelet/log"

	"gatehouse/internal/accounts"
	"gatehouse/internal/app/server"
	"gatehouse/internal/config"
	"gatehouse/internal/database"
	"gatehouse/internal/detector"
	"gatehouse/internal/geo"
	"gatehouse/internal/protection"
	"gatehouse/internal/protection/blockstore"
	"gatehouse/internal/protection/captcha"
	"gatehouse/internal/protection/ratelimit"
	"gatehouse/internal/support"
)

// Rate limiter key prefixes keep the two ceilings in separate Redis
// namespaces.
const (
	ipLimitPrefix    = "gatehouse:rate:ip:"
	emailLimitPrefix = "gatehouse:rate:email:"
)

// Setup wires the protection pipeline and starts the background routines.
// Returns the dependency set the HTTP layer serves from.
func Setup(ctx context.Context) server.Dependencies {
	config.ReadSettings()

	database.SetupDB()
	config.SetBetweenTime()

	redisClient, err := support.GetRedisClient()
	if err != nil {
		// Counters and config sync degrade without Redis; the block check
		// must not, so this is fatal like a failed database connection.
		log.Fatalf("failed to connect to redis: %v", err)
	}
	config.EnableRedisSynchronization(ctx, redisClient)

	attemptRepo := database.NewAttemptRepo(database.DB)
	blockRepo := database.NewBlockRepo(database.DB)
	alertRepo := database.NewAlertRepo(database.DB)

	blocks := blockstore.New(blockRepo)
	if err := blocks.Load(ctx); err != nil {
		// Starting with an empty block list would silently admit every
		// blocked actor. Refuse to come up instead.
		log.Fatalf("failed to load block lists: %v", err)
	}

	counterStore := ratelimit.NewRedisStore(redisClient)
	ipLimiter := ratelimit.New(counterStore, ipLimitPrefix)
	emailLimiter := ratelimit.New(counterStore, emailLimitPrefix)

	verifier := captcha.NewDynamicVerifier(func() (string, string) {
		captchaCfg := config.GetConfig().Captcha
		return captchaCfg.VerifyURL, captchaCfg.Secret
	})

	pipeline := protection.NewOrchestrator(
		blocks,
		ipLimiter,
		emailLimiter,
		attemptRepo,
		verifier,
		geo.CountryCode,
		accounts.NewHTTPClient(),
	)

	patternDetector := detector.New(attemptRepo, alertRepo)

	// Routines

	go blocks.StartRefreshRoutine(ctx)
	go patternDetector.Run(ctx)

	return server.Dependencies{
		Pipeline:   pipeline,
		Blocks:     blocks,
		BlockRepo:  blockRepo,
		Attempts:   attemptRepo,
		AlertsRepo: alertRepo,
		Detector:   patternDetector,
	}
}
