package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"gatehouse/internal/api/dto"
	"gatehouse/internal/auth"
	"gatehouse/internal/protection"
	"gatehouse/internal/support"
)

func registerUser(w http.ResponseWriter, r *http.Request) {
	var request dto.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !auth.IsValidEmail(request.Email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(request.Username)) < 3 {
		writeError(w, "Username must be at least 3 characters long", http.StatusBadRequest)
		return
	}
	if len(request.Password) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	emailDomain, err := support.EmailDomain(request.Email)
	if err != nil {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	pending, err := pipeline.Process(r.Context(), protection.Request{
		IPAddress:    support.ClientIP(r),
		Email:        strings.ToLower(strings.TrimSpace(request.Email)),
		EmailDomain:  emailDomain,
		Username:     strings.TrimSpace(request.Username),
		Password:     request.Password,
		FirstName:    strings.TrimSpace(request.FirstName),
		LastName:     strings.TrimSpace(request.LastName),
		Fingerprint:  strings.TrimSpace(request.Fingerprint),
		CaptchaToken: request.CaptchaToken,
	})
	if err != nil {
		writeRegistrationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegistrationResponse{
		UserID: pending.UserID,
		Email:  pending.Email,
		Status: pending.Status,
	})
}

// writeRegistrationError maps pipeline errors onto the public contract. All
// protection denials share one 403 body so callers cannot probe which
// defense fired.
func writeRegistrationError(w http.ResponseWriter, err error) {
	var rateErr *protection.RateLimitError
	var securityErr *protection.SecurityError
	var conflictErr *protection.ConflictError
	var validationErr *protection.ValidationError

	switch {
	case errors.Is(err, protection.ErrRegistrationDisabled):
		writeError(w, "Registration is temporarily disabled", http.StatusServiceUnavailable)

	case errors.Is(err, protection.ErrCaptchaRequired):
		writeJSON(w, http.StatusBadRequest, dto.CaptchaChallenge{
			RequireCaptcha: true,
			Message:        "Please complete the CAPTCHA and resubmit",
		})

	case errors.As(err, &rateErr):
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, "Too many registration attempts, try again later", http.StatusTooManyRequests)

	case errors.As(err, &securityErr):
		writeError(w, "Registration denied", http.StatusForbidden)

	case errors.As(err, &conflictErr):
		writeError(w, conflictErr.Message, http.StatusConflict)

	case errors.As(err, &validationErr):
		writeError(w, validationErr.Error(), http.StatusBadRequest)

	default:
		log.Error("Registration failed upstream", "error", err)
		writeError(w, "Registration is currently unavailable", http.StatusBadGateway)
	}
}

func registrationStatus(w http.ResponseWriter, r *http.Request) {
	status := pipeline.Status(r.Context(), support.ClientIP(r))
	writeJSON(w, http.StatusOK, status)
}
