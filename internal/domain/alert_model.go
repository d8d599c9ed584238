package domain

import "time"

const (
	AlertPatternSubnetBurst = "subnet_burst"
	AlertPatternDomainBurst = "blacklisted_domain_burst"
	AlertPatternScoreShift  = "score_shift"
)

// Alert is produced by the attack pattern detector. Alerts notify operators;
// they never block traffic on their own. The only mutation after creation is
// acknowledgement.
type Alert struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Pattern     string `gorm:"size:64;not null;index"`
	Description string `gorm:"size:512;not null"`

	DetectedAt time.Time `gorm:"autoCreateTime;index"`

	Acknowledged   bool       `gorm:"not null;default:false;index"`
	AcknowledgedBy string     `gorm:"size:64;not null;default:''"`
	AcknowledgedAt *time.Time
}
