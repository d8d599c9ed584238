package domain

import "time"

const (
	ListTypeBlacklist = "blacklist"
	ListTypeWhitelist = "whitelist"
)

// DomainListEntry places an email domain on exactly one of the two lists.
// The unique index on Domain plus upsert-with-replacement keeps a domain
// from ever being on both lists at once.
type DomainListEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Domain   string `gorm:"size:255;uniqueIndex;not null"`
	ListType string `gorm:"size:16;not null;check:list_type IN ('blacklist', 'whitelist')"`
	Reason   string `gorm:"size:255;not null;default:''"`
	AddedBy  string `gorm:"size:64;not null;default:''"`

	AddedAt time.Time `gorm:"autoCreateTime"`
}
