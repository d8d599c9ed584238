package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gatehouse/internal/domain"
)

// AttemptRepo persists the registration attempt ledger and serves the
// historical queries behind the scorer, the detector and the admin surface.
type AttemptRepo struct {
	db *gorm.DB
}

func NewAttemptRepo(db *gorm.DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

func (r *AttemptRepo) Insert(ctx context.Context, attempt *domain.RegistrationAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// DistinctDomainsByFingerprintSince counts how many different email domains
// the fingerprint attempted within the lookback window.
func (r *AttemptRepo) DistinctDomainsByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.RegistrationAttempt{}).
		Where("fingerprint = ? AND created_at >= ? AND email_domain <> ''", fingerprint, since).
		Distinct("email_domain").
		Count(&count).Error
	return count, err
}

// FailureRatio returns the failed fraction of the IP's most recent attempts.
// An IP with no history scores zero. The sample is intentionally small
// (lastN is an operator tunable) so one query stays cheap on the hot path.
func (r *AttemptRepo) FailureRatio(ctx context.Context, ipAddress string, lastN int) (float64, error) {
	if lastN <= 0 {
		return 0, nil
	}

	var successes []bool
	err := r.db.WithContext(ctx).
		Model(&domain.RegistrationAttempt{}).
		Where("ip_address = ?", ipAddress).
		Order("created_at DESC").
		Limit(lastN).
		Pluck("success", &successes).Error
	if err != nil {
		return 0, err
	}
	if len(successes) == 0 {
		return 0, nil
	}

	failed := 0
	for _, ok := range successes {
		if !ok {
			failed++
		}
	}
	return float64(failed) / float64(len(successes)), nil
}

// AttemptFilter narrows the admin attempt listing. Zero values mean "any".
type AttemptFilter struct {
	IPAddress   string
	EmailDomain string
	Rejection   string
	OnlyFailed  bool
	Since       time.Time
	Until       time.Time

	Limit  int
	Offset int
}

// List returns a page of ledger rows, newest first, plus the total match
// count for pagination.
func (r *AttemptRepo) List(ctx context.Context, filter AttemptFilter) ([]domain.RegistrationAttempt, int64, error) {
	filtered := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&domain.RegistrationAttempt{})
		if filter.IPAddress != "" {
			query = query.Where("ip_address = ?", filter.IPAddress)
		}
		if filter.EmailDomain != "" {
			query = query.Where("email_domain = ?", filter.EmailDomain)
		}
		if filter.Rejection != "" {
			query = query.Where("rejection_reason = ?", filter.Rejection)
		}
		if filter.OnlyFailed {
			query = query.Where("success = false")
		}
		if !filter.Since.IsZero() {
			query = query.Where("created_at >= ?", filter.Since)
		}
		if !filter.Until.IsZero() {
			query = query.Where("created_at < ?", filter.Until)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var attempts []domain.RegistrationAttempt
	err := filtered().Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&attempts).Error
	return attempts, total, err
}

// AttemptStats is the aggregate snapshot behind the admin metrics endpoint.
type AttemptStats struct {
	Total           int64
	Successes       int64
	CaptchaRequired int64
	AverageScore    float64
	Rejections      map[string]int64
}

func (r *AttemptRepo) Stats(ctx context.Context, since time.Time) (AttemptStats, error) {
	stats := AttemptStats{Rejections: map[string]int64{}}

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&domain.RegistrationAttempt{}).
			Where("created_at >= ?", since)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if stats.Total == 0 {
		return stats, nil
	}

	if err := base().Where("success = true").Count(&stats.Successes).Error; err != nil {
		return stats, err
	}
	if err := base().Where("captcha_required = true").Count(&stats.CaptchaRequired).Error; err != nil {
		return stats, err
	}

	var average *float64
	if err := base().Select("AVG(suspicion_score)").Scan(&average).Error; err != nil {
		return stats, err
	}
	if average != nil {
		stats.AverageScore = *average
	}

	type rejectionRow struct {
		RejectionReason string
		Count           int64
	}
	var rows []rejectionRow
	err := base().
		Where("rejection_reason <> ''").
		Select("rejection_reason, COUNT(*) AS count").
		Group("rejection_reason").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.Rejections[row.RejectionReason] = row.Count
	}

	return stats, nil
}

// BurstGroup is one key (subnet or email domain) with its attempt count.
type BurstGroup struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// SubnetBursts returns /24 subnets whose attempt count since the cutoff
// meets the threshold, busiest first.
func (r *AttemptRepo) SubnetBursts(ctx context.Context, since time.Time, threshold int64) ([]BurstGroup, error) {
	var groups []BurstGroup
	err := r.db.WithContext(ctx).
		Model(&domain.RegistrationAttempt{}).
		Where("created_at >= ? AND subnet <> ''", since).
		Select("subnet AS key, COUNT(*) AS count").
		Group("subnet").
		Having("COUNT(*) >= ?", threshold).
		Order("count DESC").
		Scan(&groups).Error
	return groups, err
}

// DomainBursts returns email domains that hit the blacklist signal at least
// threshold times since the cutoff.
func (r *AttemptRepo) DomainBursts(ctx context.Context, since time.Time, threshold int64) ([]BurstGroup, error) {
	var groups []BurstGroup
	err := r.db.WithContext(ctx).
		Model(&domain.RegistrationAttempt{}).
		Where("created_at >= ? AND email_domain <> '' AND reasons LIKE ?", since, "%email_domain_blacklisted%").
		Select("email_domain AS key, COUNT(*) AS count").
		Group("email_domain").
		Having("COUNT(*) >= ?", threshold).
		Order("count DESC").
		Scan(&groups).Error
	return groups, err
}

// AverageScore returns the mean suspicion score over [from, to) and the
// number of attempts it covers.
func (r *AttemptRepo) AverageScore(ctx context.Context, from, to time.Time) (float64, int64, error) {
	type row struct {
		Average *float64
		Count   int64
	}

	var result row
	err := r.db.WithContext(ctx).
		Model(&domain.RegistrationAttempt{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Select("AVG(suspicion_score) AS average, COUNT(*) AS count").
		Scan(&result).Error
	if err != nil {
		return 0, 0, err
	}
	if result.Average == nil {
		return 0, result.Count, nil
	}
	return *result.Average, result.Count, nil
}

// PurgeOlderThan removes ledger rows past the retention horizon.
func (r *AttemptRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.RegistrationAttempt{})
	return result.RowsAffected, result.Error
}
