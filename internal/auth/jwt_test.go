package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateJWT("ops@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT returned %v", err)
	}
	if claims["sub"] != "ops@example.com" || claims["role"] != "admin" {
		t.Fatalf("unexpected claims %v", claims)
	}
}

func TestValidateJWT_RejectsExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateJWT("ops@example.com", "admin", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}

	if _, err := ValidateJWT(token); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestValidateJWT_RejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateJWT("ops@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}

	t.Setenv("JWT_SECRET", "other-secret")
	if _, err := ValidateJWT(token); err == nil {
		t.Fatal("token signed with a different secret validated")
	}
}

func TestIsAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := IsAdmin(next)

	t.Run("missing header", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/metrics", nil))

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", recorder.Code)
		}
	})

	t.Run("non-admin role", func(t *testing.T) {
		token, err := GenerateJWT("user@example.com", "user", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT returned %v", err)
		}

		request := httptest.NewRequest(http.MethodGet, "/admin/metrics", nil)
		request.Header.Set("Authorization", "Bearer "+token)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		if recorder.Code != http.StatusForbidden {
			t.Fatalf("status %d, want 403", recorder.Code)
		}
	})

	t.Run("admin passes", func(t *testing.T) {
		token, err := GenerateJWT("ops@example.com", "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT returned %v", err)
		}

		request := httptest.NewRequest(http.MethodGet, "/admin/metrics", nil)
		request.Header.Set("Authorization", "Bearer "+token)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		if recorder.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", recorder.Code)
		}
	})
}

func TestActorFromRequest(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateJWT("ops@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/admin/blocks", nil)
	request.Header.Set("Authorization", "Bearer "+token)

	if got := ActorFromRequest(request); got != "ops@example.com" {
		t.Fatalf("ActorFromRequest returned %q", got)
	}

	anonymous := httptest.NewRequest(http.MethodPost, "/admin/blocks", nil)
	if got := ActorFromRequest(anonymous); got != "unknown" {
		t.Fatalf("ActorFromRequest returned %q for missing token", got)
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"user@example.com", "a.b+c@sub.example.co.uk"}
	invalid := []string{"", "user", "user@", "@example.com", "user@nodot"}

	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Fatalf("IsValidEmail(%q) = false", email)
		}
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Fatalf("IsValidEmail(%q) = true", email)
		}
	}
}
