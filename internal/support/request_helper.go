package support

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ClientIP extracts the originating IPv4 address of a request, preferring
// the leftmost X-Forwarded-For hop set by the edge proxy.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := normalizeIPv4(strings.TrimSpace(parts[0])); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if ip := normalizeIPv4(realIP); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalizeIPv4(host); ip != "" {
		return ip
	}
	return host
}

func normalizeIPv4(raw string) string {
	parsed := net.ParseIP(raw)
	if parsed == nil {
		return ""
	}
	v4 := parsed.To4()
	if v4 == nil {
		return ""
	}
	return v4.String()
}

// EmailDomain lowers an address to its registrable mail domain (eTLD+1),
// so velocity counters and domain lists group a.mailhost.example with
// b.mailhost.example. Falls back to the literal host part when the public
// suffix list has no answer (intranet domains, bare TLD test values).
func EmailDomain(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", errors.New("malformed email address")
	}

	host := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", errors.New("malformed email domain")
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return registrable, nil
}
