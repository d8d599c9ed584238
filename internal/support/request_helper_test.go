package support

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	t.Run("prefers leftmost forwarded hop", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/register", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")

		if got := ClientIP(r); got != "203.0.113.9" {
			t.Fatalf("ClientIP returned %q, want 203.0.113.9", got)
		}
	})

	t.Run("falls back to real ip header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/register", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Real-IP", "198.51.100.20")

		if got := ClientIP(r); got != "198.51.100.20" {
			t.Fatalf("ClientIP returned %q, want 198.51.100.20", got)
		}
	})

	t.Run("falls back to remote addr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/register", nil)
		r.RemoteAddr = "192.0.2.44:1234"

		if got := ClientIP(r); got != "192.0.2.44" {
			t.Fatalf("ClientIP returned %q, want 192.0.2.44", got)
		}
	})

	t.Run("garbage forwarded header is skipped", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/register", nil)
		r.RemoteAddr = "192.0.2.44:1234"
		r.Header.Set("X-Forwarded-For", "not-an-ip")

		if got := ClientIP(r); got != "192.0.2.44" {
			t.Fatalf("ClientIP returned %q, want 192.0.2.44", got)
		}
	})
}

func TestEmailDomain(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"user@gmail.com", "gmail.com"},
		{"User@GMAIL.COM", "gmail.com"},
		{"user@mail.example.co.uk", "example.co.uk"},
		{"user@intranet", "intranet"},
	}

	for _, tc := range cases {
		got, err := EmailDomain(tc.email)
		if err != nil {
			t.Fatalf("EmailDomain(%q) returned %v", tc.email, err)
		}
		if got != tc.want {
			t.Fatalf("EmailDomain(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}

func TestEmailDomain_Malformed(t *testing.T) {
	for _, email := range []string{"", "no-at-sign", "@example.com", "user@"} {
		if _, err := EmailDomain(email); err == nil {
			t.Fatalf("EmailDomain(%q) accepted malformed input", email)
		}
	}
}

func TestHashBucket(t *testing.T) {
	if got, again := HashBucket("198.51.100.7"), HashBucket("198.51.100.7"); got != again {
		t.Fatalf("HashBucket is not deterministic: %d vs %d", got, again)
	}

	for _, key := range []string{"a", "198.51.100.7", "fingerprint-1", ""} {
		if bucket := HashBucket(key); bucket > 99 {
			t.Fatalf("HashBucket(%q) = %d, outside [0,100)", key, bucket)
		}
	}
}
