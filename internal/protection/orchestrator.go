// Package protection runs the per-request decision pipeline that guards
// self-service registration: block check, rate check, suspicion scoring,
// CAPTCHA gating and the final hand-off to the account service.
package protection

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gatehouse/internal/accounts"
	"gatehouse/internal/config"
	"gatehouse/internal/domain"
	"gatehouse/internal/protection/ratelimit"
	"gatehouse/internal/protection/scorer"
	"gatehouse/internal/support"
)

// AttemptRepository is the append-only ledger plus the historical lookups
// the scorer feeds on.
type AttemptRepository interface {
	Insert(ctx context.Context, attempt *domain.RegistrationAttempt) error
	DistinctDomainsByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int64, error)
	FailureRatio(ctx context.Context, ipAddress string, lastN int) (float64, error)
}

// BlockStore is the subset of the block store the pipeline needs.
type BlockStore interface {
	IsBlocked(ipAddress string) bool
	DomainList(name string) scorer.ListMembership
	Block(ctx context.Context, ipAddress string, duration time.Duration, reason, actor string) error
}

// RateLimiter matches *ratelimit.Limiter; an interface so tests can inject
// deterministic fakes.
type RateLimiter interface {
	Check(ctx context.Context, key string, max int, window time.Duration) ratelimit.Result
	Increment(ctx context.Context, key string, window time.Duration)
}

// Request is one registration attempt as seen by the pipeline. EmailDomain
// is already normalised to the registrable domain by the HTTP layer.
type Request struct {
	IPAddress    string
	Email        string
	EmailDomain  string
	Username     string
	Password     string
	FirstName    string
	LastName     string
	Fingerprint  string
	CaptchaToken string
}

// Rejection reasons recorded on the ledger.
const (
	RejectionDisabled       = "registration_disabled"
	RejectionBlockedIP      = "blocked_ip"
	RejectionRateLimited    = "rate_limited"
	RejectionCaptchaMissing = "captcha_required"
	RejectionCaptchaFailed  = "captcha_failed"
	RejectionScore          = "score_threshold"
	RejectionDuplicate      = "duplicate_account"
	RejectionUpstream       = "account_service_error"
)

const autoBlockReason = "suspicion score exceeded auto-block threshold"

type Orchestrator struct {
	Config       func() config.Config
	Blocks       BlockStore
	IPLimiter    RateLimiter
	EmailLimiter RateLimiter
	Attempts     AttemptRepository
	Captcha      captchaVerifier
	Country      func(ipAddress string) string
	Accounts     accounts.Creator

	// AccountTimeout bounds the downstream call so a slow account service
	// cannot pin request goroutines.
	AccountTimeout time.Duration

	now func() time.Time
}

type captchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

func NewOrchestrator(
	blocks BlockStore,
	ipLimiter, emailLimiter RateLimiter,
	attempts AttemptRepository,
	verifier captchaVerifier,
	country func(string) string,
	creator accounts.Creator,
) *Orchestrator {
	return &Orchestrator{
		Config:         config.GetConfig,
		Blocks:         blocks,
		IPLimiter:      ipLimiter,
		EmailLimiter:   emailLimiter,
		Attempts:       attempts,
		Captcha:        verifier,
		Country:        country,
		Accounts:       creator,
		AccountTimeout: 10 * time.Second,
		now:            time.Now,
	}
}

// Process walks a single request through the state machine. Every return
// path, rejections included, writes exactly one ledger record, so the
// ledger is a complete history of registration traffic.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*accounts.PendingUser, error) {
	cfg := o.Config()

	attempt := &domain.RegistrationAttempt{
		IPAddress:   req.IPAddress,
		Subnet:      domain.SubnetOf(req.IPAddress),
		EmailDomain: req.EmailDomain,
		Fingerprint: req.Fingerprint,
		CreatedAt:   o.now(),
	}

	// Kill-switch first: the emergency disable must short-circuit all
	// traffic before any other work.
	if !cfg.Enabled {
		o.record(ctx, attempt, RejectionDisabled)
		return nil, ErrRegistrationDisabled
	}

	// Rollout gating: clients outside the percentage bypass the pipeline
	// entirely but still reach the account service and the ledger.
	if cfg.RolloutPercentage < 100 && support.HashBucket(req.IPAddress) >= cfg.RolloutPercentage {
		return o.createAccount(ctx, req, attempt)
	}

	// Block check fails closed and skips all remaining work: a blocked
	// actor learns nothing about scoring or limits.
	if o.Blocks.IsBlocked(req.IPAddress) {
		o.record(ctx, attempt, RejectionBlockedIP)
		return nil, &SecurityError{Trigger: RejectionBlockedIP}
	}

	window := config.GetRateWindow()
	ipCheck := o.IPLimiter.Check(ctx, req.IPAddress, int(cfg.MaxAttemptsPerIP), window)
	emailCheck := o.EmailLimiter.Check(ctx, req.EmailDomain, int(cfg.MaxAttemptsPerEmail), window)

	// Most restrictive wins; counters are not incremented for a denied
	// request, so waiting out the window actually clears the ceiling.
	if !ipCheck.Allowed || !emailCheck.Allowed {
		o.record(ctx, attempt, RejectionRateLimited)
		return nil, &RateLimitError{RetryAfter: o.retryAfter(ipCheck, emailCheck)}
	}

	result := o.score(ctx, cfg, req, ipCheck, emailCheck)
	attempt.SuspicionScore = result.Score
	attempt.Reasons = strings.Join(result.Reasons, ",")

	if result.Score >= cfg.RequireCaptchaThreshold {
		attempt.CaptchaRequired = true

		if strings.TrimSpace(req.CaptchaToken) == "" {
			o.record(ctx, attempt, RejectionCaptchaMissing)
			return nil, ErrCaptchaRequired
		}

		verified, err := o.Captcha.Verify(ctx, req.CaptchaToken, req.IPAddress)
		if err != nil {
			// Fail closed: an unverifiable token counts as a failed one.
			log.Error("Captcha verification error", "ip", req.IPAddress, "error", err)
			verified = false
		}
		if !verified {
			o.record(ctx, attempt, RejectionCaptchaFailed)
			return nil, &SecurityError{Trigger: RejectionCaptchaFailed}
		}
		attempt.CaptchaVerified = true
	}

	if result.Score >= cfg.DenyThreshold {
		if result.Score >= cfg.AutoBlockThreshold {
			if err := o.Blocks.Block(ctx, req.IPAddress, config.GetBlockDuration(), autoBlockReason, domain.SystemActor); err != nil {
				log.Error("Automatic block failed", "ip", req.IPAddress, "error", err)
			}
		}
		o.record(ctx, attempt, RejectionScore)
		return nil, &SecurityError{Trigger: RejectionScore}
	}

	// The attempt is going through: consume window budget exactly once.
	o.IPLimiter.Increment(ctx, req.IPAddress, window)
	o.EmailLimiter.Increment(ctx, req.EmailDomain, window)

	return o.createAccount(ctx, req, attempt)
}

func (o *Orchestrator) score(ctx context.Context, cfg config.Config, req Request, ipCheck, emailCheck ratelimit.Result) scorer.Result {
	since := o.now().Add(-config.GetHistoryWindow())

	var fingerprintDomains int64
	if req.Fingerprint != "" {
		count, err := o.Attempts.DistinctDomainsByFingerprintSince(ctx, req.Fingerprint, since)
		if err != nil {
			log.Warn("Fingerprint history unavailable, signal neutral", "error", err)
		} else {
			fingerprintDomains = count
		}
	}

	failureRatio, err := o.Attempts.FailureRatio(ctx, req.IPAddress, int(cfg.FailureLookback))
	if err != nil {
		log.Warn("Failure history unavailable, signal neutral", "error", err)
		failureRatio = 0
	}

	weights := scorer.Weights(cfg.Weights)

	return scorer.Score(scorer.Context{
		IPAttempts:         int(cfg.MaxAttemptsPerIP) - ipCheck.Remaining,
		EmailAttempts:      int(cfg.MaxAttemptsPerEmail) - emailCheck.Remaining,
		MaxPerIP:           int(cfg.MaxAttemptsPerIP),
		MaxPerEmail:        int(cfg.MaxAttemptsPerEmail),
		DomainList:         o.Blocks.DomainList(req.EmailDomain),
		Country:            o.Country(req.IPAddress),
		AllowedCountries:   cfg.AllowedCountries,
		BlockedCountries:   cfg.BlockedCountries,
		FingerprintDomains: int(fingerprintDomains),
		HasFingerprint:     req.Fingerprint != "",
		FailureRatio:       failureRatio,
	}, &weights)
}

func (o *Orchestrator) createAccount(ctx context.Context, req Request, attempt *domain.RegistrationAttempt) (*accounts.PendingUser, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.AccountTimeout)
	defer cancel()

	pending, err := o.Accounts.Create(callCtx, accounts.Registration{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrDuplicateAccount) {
			o.record(ctx, attempt, RejectionDuplicate)
			return nil, &ConflictError{Message: "an account with this email or username already exists"}
		}

		// Timeouts and upstream failures still land in the ledger so the
		// failure-rate signal keeps seeing them.
		o.record(ctx, attempt, RejectionUpstream)
		return nil, err
	}

	attempt.Success = true
	o.record(ctx, attempt, "")
	return pending, nil
}

// Status reports whether registration is currently open for the given IP.
type Status struct {
	Enabled bool      `json:"enabled"`
	ResetAt time.Time `json:"reset_at,omitzero"`
}

func (o *Orchestrator) Status(ctx context.Context, ipAddress string) Status {
	cfg := o.Config()
	if !cfg.Enabled {
		return Status{Enabled: false}
	}
	if o.Blocks.IsBlocked(ipAddress) {
		return Status{Enabled: false}
	}

	check := o.IPLimiter.Check(ctx, ipAddress, int(cfg.MaxAttemptsPerIP), config.GetRateWindow())
	if !check.Allowed {
		return Status{Enabled: false, ResetAt: check.ResetAt}
	}
	return Status{Enabled: true}
}

// record writes the single ledger row for this request. A ledger outage is
// logged, never allowed to turn a finished decision into a user-facing 500.
func (o *Orchestrator) record(ctx context.Context, attempt *domain.RegistrationAttempt, rejection string) {
	attempt.RejectionReason = rejection

	if err := o.Attempts.Insert(ctx, attempt); err != nil {
		log.Error("Failed to record registration attempt",
			"ip", attempt.IPAddress,
			"rejection", rejection,
			"error", err,
		)
	}
}

func (o *Orchestrator) retryAfter(ipCheck, emailCheck ratelimit.Result) time.Duration {
	resetAt := ipCheck.ResetAt
	if !ipCheck.Allowed && !emailCheck.Allowed {
		if emailCheck.ResetAt.After(resetAt) {
			resetAt = emailCheck.ResetAt
		}
	} else if ipCheck.Allowed {
		resetAt = emailCheck.ResetAt
	}

	retry := time.Until(resetAt)
	if retry < time.Second {
		retry = time.Second
	}
	return retry
}
