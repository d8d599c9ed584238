package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gatehouse/internal/domain"
)

// BlockRepo is the durable backend for blocked IPs and the email domain
// lists. The blockstore package keeps its own read snapshots; everything
// here is the write and reload path.
type BlockRepo struct {
	db *gorm.DB
}

func NewBlockRepo(db *gorm.DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// ActiveBlocks returns blocks that have not expired yet, permanent ones
// included.
func (r *BlockRepo) ActiveBlocks(ctx context.Context) ([]domain.BlockedIP, error) {
	var blocks []domain.BlockedIP
	err := r.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Find(&blocks).Error
	return blocks, err
}

// UpsertBlock inserts the block or refreshes an existing one for the same
// IP. Re-blocking extends rather than errors, so an admin can lengthen a
// block without unblocking first.
func (r *BlockRepo) UpsertBlock(ctx context.Context, block domain.BlockedIP) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"reason":     gorm.Expr("EXCLUDED.reason"),
			"blocked_by": gorm.Expr("EXCLUDED.blocked_by"),
			"blocked_at": gorm.Expr("EXCLUDED.blocked_at"),
			"expires_at": gorm.Expr("EXCLUDED.expires_at"),
		}),
	}).Create(&block).Error
}

func (r *BlockRepo) DeleteBlock(ctx context.Context, ipAddress string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("ip_address = ?", ipAddress).
		Delete(&domain.BlockedIP{})
	return result.RowsAffected > 0, result.Error
}

// DeleteExpiredBlocks removes blocks whose expiry has passed and reports how
// many were swept.
func (r *BlockRepo) DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&domain.BlockedIP{})
	return result.RowsAffected, result.Error
}

// UpsertDomain writes a domain list entry. The unique index on the domain
// column makes the upsert move a domain between lists atomically; a domain
// is never on both lists.
func (r *BlockRepo) UpsertDomain(ctx context.Context, entry domain.DomainListEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "domain"}},
		DoUpdates: clause.Assignments(map[string]any{
			"list_type": gorm.Expr("EXCLUDED.list_type"),
			"reason":    gorm.Expr("EXCLUDED.reason"),
			"added_by":  gorm.Expr("EXCLUDED.added_by"),
			"added_at":  gorm.Expr("EXCLUDED.added_at"),
		}),
	}).Create(&entry).Error
}

func (r *BlockRepo) DeleteDomain(ctx context.Context, name string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("domain = ?", name).
		Delete(&domain.DomainListEntry{})
	return result.RowsAffected > 0, result.Error
}

// ListDomains returns entries for one list, or every entry when listType is
// empty.
func (r *BlockRepo) ListDomains(ctx context.Context, listType string) ([]domain.DomainListEntry, error) {
	query := r.db.WithContext(ctx).Order("domain ASC")
	if listType != "" {
		query = query.Where("list_type = ?", listType)
	}

	var entries []domain.DomainListEntry
	err := query.Find(&entries).Error
	return entries, err
}
