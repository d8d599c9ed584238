// Package accounts talks to the downstream account service, the external
// collaborator that owns credential hashing, verification mail and session
// issuance. Gatehouse only decides whether the request may reach it.
package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gatehouse/internal/support"
)

// Registration is the payload forwarded after the protection pipeline
// allows an attempt through.
type Registration struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// PendingUser is the account service's acknowledgement: the account exists
// but awaits email verification.
type PendingUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

var ErrDuplicateAccount = errors.New("accounts: email or username already registered")

// Creator hands a vetted registration to the account service.
type Creator interface {
	Create(ctx context.Context, reg Registration) (*PendingUser, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		baseURL: support.GetEnv("ACCOUNT_SERVICE_URL", "http://localhost:8090"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Create(ctx context.Context, reg Registration) (*PendingUser, error) {
	body, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("encode registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/users", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build account request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account service call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrDuplicateAccount
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("account service returned status %d", resp.StatusCode)
	}

	var pending PendingUser
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		return nil, fmt.Errorf("decode account response: %w", err)
	}

	return &pending, nil
}
