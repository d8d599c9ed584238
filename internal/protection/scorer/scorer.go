package scorer

import "strings"

// ListMembership is the email domain's position on the admin-managed lists.
type ListMembership int

const (
	ListNone ListMembership = iota
	ListBlacklist
	ListWhitelist
)

// Context carries every signal the scorer consumes. Building it is the
// orchestrator's job; scoring itself is deterministic and side-effect free.
type Context struct {
	IPAttempts    int
	EmailAttempts int
	MaxPerIP      int
	MaxPerEmail   int

	DomainList ListMembership

	Country          string
	AllowedCountries []string
	BlockedCountries []string

	// FingerprintDomains counts distinct email domains recently attempted
	// from the same client fingerprint. Zero when no fingerprint was sent.
	FingerprintDomains int
	HasFingerprint     bool

	// FailureRatio is the rejected/failed fraction of the IP's recent attempts.
	FailureRatio float64
}

// Weights tune the individual signals. Velocity, Geo, Fingerprint and
// Failures are normalised against each other so their weighted sum stays in
// [0,1]. DomainList is deliberately a raw additive term: a blacklisted domain
// must be able to push the score past the deny threshold on its own.
type Weights struct {
	Velocity    float64
	DomainList  float64
	Geo         float64
	Fingerprint float64
	Failures    float64
}

type Result struct {
	Score   float64
	Reasons []string
}

var defaultWeights = Weights{
	Velocity:    0.4,
	DomainList:  0.9,
	Geo:         0.25,
	Fingerprint: 0.2,
	Failures:    0.15,
}

const (
	reasonWhitelisted    = "email_domain_whitelisted"
	reasonBlacklisted    = "email_domain_blacklisted"
	reasonIPVelocity     = "ip_velocity"
	reasonEmailVelocity  = "email_velocity"
	reasonBlockedCountry = "blocked_country"
	reasonCountryOutside = "country_outside_allowlist"
	reasonFingerprint    = "fingerprint_reuse"
	reasonFailures       = "failure_history"

	// contribution a signal must make before it is worth naming.
	reasonFloor = 0.05
)

// Score combines the signals into a suspicion estimate in [0,1].
// Whitelisted domains short-circuit every positive signal so known-good
// corporate domains stay admitted even during an attack wave.
func Score(ctx Context, custom *Weights) Result {
	w := defaultWeights
	if custom != nil {
		w = *custom
		normaliseWeights(&w)
	}

	if ctx.DomainList == ListWhitelist {
		return Result{Score: 0, Reasons: []string{reasonWhitelisted}}
	}

	velocity := calculateVelocitySignal(ctx)
	geo := calculateGeoSignal(ctx)
	fingerprint := calculateFingerprintSignal(ctx)
	failures := clamp01(ctx.FailureRatio)

	total := w.Velocity + w.Geo + w.Fingerprint + w.Failures
	score := clamp01(
		(w.Velocity*velocity +
			w.Geo*geo +
			w.Fingerprint*fingerprint +
			w.Failures*failures) / total,
	)

	var reasons []string
	if w.Velocity*velocity > reasonFloor {
		if ipRatio(ctx) >= emailRatio(ctx) {
			reasons = append(reasons, reasonIPVelocity)
		} else {
			reasons = append(reasons, reasonEmailVelocity)
		}
	}
	if w.Geo*geo > reasonFloor {
		if containsFold(ctx.BlockedCountries, ctx.Country) {
			reasons = append(reasons, reasonBlockedCountry)
		} else {
			reasons = append(reasons, reasonCountryOutside)
		}
	}
	if w.Fingerprint*fingerprint > reasonFloor {
		reasons = append(reasons, reasonFingerprint)
	}
	if w.Failures*failures > reasonFloor {
		reasons = append(reasons, reasonFailures)
	}

	if ctx.DomainList == ListBlacklist {
		score = clamp01(score + w.DomainList)
		reasons = append(reasons, reasonBlacklisted)
	}

	return Result{Score: score, Reasons: reasons}
}

// normaliseWeights scales the four blended signals to sum to one; the
// DomainList boost is clamped but not normalised.
func normaliseWeights(w *Weights) {
	total := w.Velocity + w.Geo + w.Fingerprint + w.Failures
	if total <= 0 {
		base := defaultWeights
		base.DomainList = w.DomainList
		*w = base
		total = w.Velocity + w.Geo + w.Fingerprint + w.Failures
	}
	w.Velocity /= total
	w.Geo /= total
	w.Fingerprint /= total
	w.Failures /= total

	w.DomainList = clamp01(w.DomainList)
	if w.DomainList == 0 {
		w.DomainList = defaultWeights.DomainList
	}
}

func calculateVelocitySignal(ctx Context) float64 {
	ip := ipRatio(ctx)
	email := emailRatio(ctx)
	if ip > email {
		return ip
	}
	return email
}

func ipRatio(ctx Context) float64 {
	if ctx.MaxPerIP <= 0 {
		return 0
	}
	return clamp01(float64(ctx.IPAttempts) / float64(ctx.MaxPerIP))
}

func emailRatio(ctx Context) float64 {
	if ctx.MaxPerEmail <= 0 {
		return 0
	}
	return clamp01(float64(ctx.EmailAttempts) / float64(ctx.MaxPerEmail))
}

func calculateGeoSignal(ctx Context) float64 {
	if ctx.Country == "" {
		// unknown country is neutral, never a penalty
		return 0
	}

	if containsFold(ctx.BlockedCountries, ctx.Country) {
		return 1
	}

	if len(ctx.AllowedCountries) > 0 && !containsFold(ctx.AllowedCountries, ctx.Country) {
		return 0.25
	}

	return 0
}

func calculateFingerprintSignal(ctx Context) float64 {
	if !ctx.HasFingerprint {
		// absence of a fingerprint must never count against a client
		return 0
	}

	const maxDistinctDomains = 5
	if ctx.FingerprintDomains <= 1 {
		return 0
	}
	return clamp01(float64(ctx.FingerprintDomains-1) / float64(maxDistinctDomains-1))
}

func containsFold(list []string, value string) bool {
	for _, entry := range list {
		if strings.EqualFold(entry, value) {
			return true
		}
	}
	return false
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
