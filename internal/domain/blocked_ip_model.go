package domain

import "time"

// SystemActor is recorded as BlockedBy when the orchestrator blocks an IP
// automatically instead of a human operator.
const SystemActor = "system"

// BlockedIP is a temporary or permanent registration block for a single IP.
type BlockedIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IPAddress string `gorm:"size:45;uniqueIndex;not null"`
	Reason    string `gorm:"size:255;not null;default:''"`
	BlockedBy string `gorm:"size:64;not null;default:''"`

	BlockedAt time.Time `gorm:"autoCreateTime"`

	// ExpiresAt is nil for permanent blocks. Expired rows are treated as
	// absent at read time and removed lazily by the sweep.
	ExpiresAt *time.Time `gorm:"index"`
}

// Active reports whether the block still applies at the given instant.
func (b *BlockedIP) Active(now time.Time) bool {
	if b.ExpiresAt == nil {
		return true
	}
	return b.ExpiresAt.After(now)
}
