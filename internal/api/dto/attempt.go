package dto

import "time"

type AttemptInfo struct {
	ID              uint64    `json:"id"`
	IPAddress       string    `json:"ip_address"`
	Subnet          string    `json:"subnet,omitempty"`
	EmailDomain     string    `json:"email_domain"`
	Fingerprint     string    `json:"fingerprint,omitempty"`
	Success         bool      `json:"success"`
	SuspicionScore  float64   `json:"suspicion_score"`
	CaptchaRequired bool      `json:"captcha_required"`
	CaptchaVerified bool      `json:"captcha_verified"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Reasons         string    `json:"reasons,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type AttemptPage struct {
	Attempts []AttemptInfo `json:"attempts"`
	Total    int64         `json:"total"`
}
