package dto

import "time"

// BlockIPRequest blocks a single IP. DurationMinutes of zero makes the
// block permanent.
type BlockIPRequest struct {
	IPAddress       string `json:"ip_address"`
	Reason          string `json:"reason"`
	DurationMinutes uint32 `json:"duration_minutes"`
}

type BlockedIPInfo struct {
	IPAddress string     `json:"ip_address"`
	Reason    string     `json:"reason"`
	BlockedBy string     `json:"blocked_by"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
