// Package captcha consumes CAPTCHA verification results. Challenge rendering
// and vendor specifics live client-side; this package only answers whether a
// submitted token verifies for the requesting IP.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier decides whether a client-supplied token passes verification.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

var ErrNotConfigured = errors.New("captcha: verifier not configured")

// HTTPVerifier posts the token to a siteverify-style endpoint
// (form-encoded secret/response/remoteip, JSON {"success": bool} back).
type HTTPVerifier struct {
	VerifyURL string
	Secret    string

	client *http.Client
}

func NewHTTPVerifier(verifyURL, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		VerifyURL: verifyURL,
		Secret:    secret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.VerifyURL == "" {
		return false, ErrNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.Secret)
	form.Set("response", token)
	form.Set("remoteip", remoteIP)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("execute verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("unexpected verify status %d", resp.StatusCode)
	}

	var payload struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}

	return payload.Success, nil
}

// DynamicVerifier resolves the endpoint and secret on every call, so config
// updates to the CAPTCHA settings apply without a restart.
type DynamicVerifier struct {
	Source func() (verifyURL, secret string)

	client *http.Client
}

func NewDynamicVerifier(source func() (string, string)) *DynamicVerifier {
	return &DynamicVerifier{
		Source: source,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *DynamicVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	verifyURL, secret := v.Source()
	delegate := HTTPVerifier{VerifyURL: verifyURL, Secret: secret, client: v.client}
	return delegate.Verify(ctx, token, remoteIP)
}

// StaticVerifier returns a fixed result; used in tests and when no vendor
// endpoint is configured yet.
type StaticVerifier struct {
	Result bool
	Err    error
}

func (v StaticVerifier) Verify(context.Context, string, string) (bool, error) {
	return v.Result, v.Err
}
