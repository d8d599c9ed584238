package domain

import (
	"net"
	"strings"
	"time"
)

// RegistrationAttempt is the append-only ledger record written for every
// registration request, including early rejections. Rows are never updated;
// the retention sweep is the only thing that deletes them.
type RegistrationAttempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IPAddress string `gorm:"size:45;not null;index"`

	// Subnet holds the /24 of the source address, precomputed so the attack
	// pattern detector can group bursts without string surgery in SQL.
	Subnet string `gorm:"size:45;not null;default:'';index"`

	EmailDomain string `gorm:"size:255;not null;default:'';index"`
	Fingerprint string `gorm:"size:128;not null;default:'';index"`

	Success         bool    `gorm:"not null;default:false"`
	SuspicionScore  float64 `gorm:"not null;default:0"`
	CaptchaRequired bool    `gorm:"not null;default:false"`
	CaptchaVerified bool    `gorm:"not null;default:false"`

	// RejectionReason is empty for successful attempts.
	RejectionReason string `gorm:"size:64;not null;default:'';index"`

	// Reasons records the scoring signals that contributed, comma-joined.
	Reasons string `gorm:"size:512;not null;default:''"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// SubnetOf reduces an IPv4 address to its /24 network string. Non-IPv4
// input maps to the empty string rather than an error; the detector simply
// ignores attempts without a subnet.
func SubnetOf(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}
	v4 := parsed.To4()
	if v4 == nil {
		return ""
	}
	masked := v4.Mask(net.CIDRMask(24, 32))
	return masked.String() + "/24"
}
