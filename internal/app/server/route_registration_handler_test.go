package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatehouse/internal/accounts"
	"gatehouse/internal/config"
	"gatehouse/internal/domain"
	"gatehouse/internal/protection"
	"gatehouse/internal/protection/ratelimit"
	"gatehouse/internal/protection/scorer"
)

type stubBlocks struct {
	blocked    bool
	membership scorer.ListMembership
}

func (s stubBlocks) IsBlocked(string) bool                   { return s.blocked }
func (s stubBlocks) DomainList(string) scorer.ListMembership { return s.membership }

func (s stubBlocks) Block(context.Context, string, time.Duration, string, string) error {
	return nil
}

type stubLimiter struct {
	allowed bool
}

func (s stubLimiter) Check(_ context.Context, _ string, max int, window time.Duration) ratelimit.Result {
	return ratelimit.Result{Allowed: s.allowed, Remaining: max, ResetAt: time.Now().Add(window)}
}

func (s stubLimiter) Increment(context.Context, string, time.Duration) {}

type noopLedger struct{}

func (noopLedger) Insert(context.Context, *domain.RegistrationAttempt) error { return nil }

func (noopLedger) DistinctDomainsByFingerprintSince(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (noopLedger) FailureRatio(context.Context, string, int) (float64, error) { return 0, nil }

type stubCreator struct {
	pending *accounts.PendingUser
	err     error
}

func (s stubCreator) Create(context.Context, accounts.Registration) (*accounts.PendingUser, error) {
	return s.pending, s.err
}

type stubVerifier struct{ ok bool }

func (s stubVerifier) Verify(context.Context, string, string) (bool, error) { return s.ok, nil }

func testPipeline(t *testing.T, cfg config.Config, blocks stubBlocks, limiter stubLimiter, creator stubCreator, verifier stubVerifier) {
	t.Helper()

	orch := protection.NewOrchestrator(
		blocks,
		limiter,
		limiter,
		noopLedger{},
		verifier,
		func(string) string { return "" },
		creator,
	)
	orch.Config = func() config.Config { return cfg }

	previous := pipeline
	pipeline = orch
	t.Cleanup(func() { pipeline = previous })
}

func protectionConfig() config.Config {
	return config.Config{
		Enabled:                 true,
		RolloutPercentage:       100,
		MaxAttemptsPerIP:        5,
		MaxAttemptsPerEmail:     3,
		RequireCaptchaThreshold: 0.5,
		DenyThreshold:           0.85,
		AutoBlockThreshold:      0.95,
		FailureLookback:         20,
	}
}

func registrationBody() string {
	return `{"email":"new@example.com","username":"newuser","password":"long-enough-pass"}`
}

func performRegistration(body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	request.RemoteAddr = "198.51.100.7:40000"

	recorder := httptest.NewRecorder()
	registerUser(recorder, request)
	return recorder
}

func TestRegisterUser_Success(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{}, stubLimiter{allowed: true},
		stubCreator{pending: &accounts.PendingUser{UserID: "u-1", Email: "new@example.com", Status: "pending_verification"}},
		stubVerifier{ok: true},
	)

	recorder := performRegistration(registrationBody())
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		UserID string `json:"user_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.UserID != "u-1" || response.Status != "pending_verification" {
		t.Fatalf("unexpected response %+v", response)
	}
}

func TestRegisterUser_Validation(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{}, stubLimiter{allowed: true},
		stubCreator{}, stubVerifier{ok: true})

	cases := []struct {
		name string
		body string
	}{
		{"broken json", `{`},
		{"bad email", `{"email":"not-an-email","username":"newuser","password":"long-enough-pass"}`},
		{"short username", `{"email":"new@example.com","username":"ab","password":"long-enough-pass"}`},
		{"short password", `{"email":"new@example.com","username":"newuser","password":"short"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := performRegistration(tc.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", recorder.Code)
			}
		})
	}
}

func TestRegisterUser_SecurityDenialIsUniform(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{blocked: true}, stubLimiter{allowed: true},
		stubCreator{}, stubVerifier{ok: true})

	recorder := performRegistration(registrationBody())
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", recorder.Code)
	}
	// The body must not leak which defense fired.
	if body := recorder.Body.String(); strings.Contains(body, "block") {
		t.Fatalf("denial body leaks the trigger: %s", body)
	}
}

func TestRegisterUser_RateLimited(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{}, stubLimiter{allowed: false},
		stubCreator{}, stubVerifier{ok: true})

	recorder := performRegistration(registrationBody())
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", recorder.Code)
	}
	if recorder.Header().Get("Retry-After") == "" {
		t.Fatal("429 without Retry-After header")
	}
}

func TestRegisterUser_CaptchaChallenge(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{membership: scorer.ListBlacklist}, stubLimiter{allowed: true},
		stubCreator{}, stubVerifier{ok: true})

	recorder := performRegistration(registrationBody())
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", recorder.Code)
	}

	var challenge struct {
		RequireCaptcha bool `json:"require_captcha"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if !challenge.RequireCaptcha {
		t.Fatal("challenge body missing require_captcha flag")
	}
}

func TestRegisterUser_Disabled(t *testing.T) {
	cfg := protectionConfig()
	cfg.Enabled = false
	testPipeline(t, cfg, stubBlocks{}, stubLimiter{allowed: true}, stubCreator{}, stubVerifier{ok: true})

	recorder := performRegistration(registrationBody())
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", recorder.Code)
	}
}

func TestRegisterUser_Conflict(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{}, stubLimiter{allowed: true},
		stubCreator{err: accounts.ErrDuplicateAccount}, stubVerifier{ok: true})

	recorder := performRegistration(registrationBody())
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", recorder.Code)
	}
}

func TestRegistrationStatus(t *testing.T) {
	testPipeline(t, protectionConfig(), stubBlocks{}, stubLimiter{allowed: true},
		stubCreator{}, stubVerifier{ok: true})

	request := httptest.NewRequest(http.MethodGet, "/register/status", nil)
	request.RemoteAddr = "198.51.100.7:40000"

	recorder := httptest.NewRecorder()
	registrationStatus(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", recorder.Code)
	}

	var status struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Enabled {
		t.Fatal("open registration reported closed")
	}
}
