// Package detector periodically scans the attempt ledger for coordinated
// abuse: subnet bursts, blacklisted-domain bursts and sudden shifts in the
// mean suspicion score. Findings become alerts for operators; the detector
// never blocks traffic on its own.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"gatehouse/internal/config"
	"gatehouse/internal/database"
	"gatehouse/internal/domain"
	"gatehouse/internal/support"
)

const leaderLockKey = "gatehouse:leader:detector"

// scoreShiftMinSample is the minimum number of attempts in the recent window
// before a score shift is trusted. Small samples swing wildly and would page
// operators over noise.
const scoreShiftMinSample = 20

// AttemptSource is the slice of the ledger the detector reads.
type AttemptSource interface {
	SubnetBursts(ctx context.Context, since time.Time, threshold int64) ([]database.BurstGroup, error)
	DomainBursts(ctx context.Context, since time.Time, threshold int64) ([]database.BurstGroup, error)
	AverageScore(ctx context.Context, from, to time.Time) (float64, int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertSink persists findings.
type AlertSink interface {
	Insert(ctx context.Context, alert *domain.Alert) error
	HasOpenAlert(ctx context.Context, pattern, description string) (bool, error)
}

// Report summarises one scan.
type Report struct {
	SubnetBursts []database.BurstGroup `json:"subnet_bursts"`
	DomainBursts []database.BurstGroup `json:"domain_bursts"`

	ScoreShift    bool    `json:"score_shift"`
	RecentAverage float64 `json:"recent_average"`
	BaselineScore float64 `json:"baseline_average"`

	AlertsRaised int `json:"alerts_raised"`
}

type Detector struct {
	Attempts AttemptSource
	Alerts   AlertSink

	cfg func() config.Config
	now func() time.Time
}

func New(attempts AttemptSource, alerts AlertSink) *Detector {
	return &Detector{
		Attempts: attempts,
		Alerts:   alerts,
		cfg:      config.GetConfig,
		now:      time.Now,
	}
}

// Run executes scans on the configured interval while holding the Redis
// leadership lock, so a multi-instance deployment scans exactly once per
// interval. Blocks until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	err := support.RunWithLeader(ctx, leaderLockKey, support.DefaultLeadershipTTL, func(leadCtx context.Context) {
		d.runLoop(leadCtx)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("Detector: leadership loop ended", "error", err)
	}
}

func (d *Detector) runLoop(ctx context.Context) {
	interval := config.GetDetectorInterval()
	updates := config.DetectorIntervalUpdates()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case newInterval := <-updates:
			if newInterval <= 0 || newInterval == interval {
				continue
			}
			interval = newInterval
			ticker.Reset(interval)
			log.Info("Detector: interval updated", "interval", interval)
		case <-ticker.C:
			if _, err := d.Scan(ctx); err != nil {
				log.Error("Detector: scan failed", "error", err)
			}
			d.sweepRetention(ctx)
		}
	}
}

// Scan runs all pattern checks over the ledger once and raises alerts for
// new findings. Failures in one check do not stop the others.
func (d *Detector) Scan(ctx context.Context) (Report, error) {
	cfg := d.cfg()
	now := d.now()
	since := now.Add(-config.GetDetectorInterval())

	var report Report
	var firstErr error

	subnets, err := d.Attempts.SubnetBursts(ctx, since, int64(cfg.Detector.SubnetBurstThreshold))
	if err != nil {
		firstErr = fmt.Errorf("subnet burst query: %w", err)
	} else {
		report.SubnetBursts = subnets
		for _, burst := range subnets {
			description := fmt.Sprintf("%d registration attempts from subnet %s", burst.Count, burst.Key)
			report.AlertsRaised += d.raise(ctx, domain.AlertPatternSubnetBurst, description)
		}
	}

	domains, err := d.Attempts.DomainBursts(ctx, since, int64(cfg.Detector.DomainBurstThreshold))
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("domain burst query: %w", err)
	} else if err == nil {
		report.DomainBursts = domains
		for _, burst := range domains {
			description := fmt.Sprintf("%d attempts with blacklisted email domain %s", burst.Count, burst.Key)
			report.AlertsRaised += d.raise(ctx, domain.AlertPatternDomainBurst, description)
		}
	}

	shift, err := d.checkScoreShift(ctx, now, since, cfg.Detector.ScoreShiftDelta, &report)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("score shift query: %w", err)
	} else if shift != "" {
		report.ScoreShift = true
		report.AlertsRaised += d.raise(ctx, domain.AlertPatternScoreShift, shift)
	}

	if report.AlertsRaised > 0 {
		log.Warn("Detector: raised alerts", "count", report.AlertsRaised)
	}

	return report, firstErr
}

// checkScoreShift compares the mean suspicion score of the most recent
// interval against the preceding history window baseline. Returns the alert
// description, or empty when nothing shifted.
func (d *Detector) checkScoreShift(ctx context.Context, now, since time.Time, delta float64, report *Report) (string, error) {
	if delta <= 0 {
		return "", nil
	}

	recent, recentCount, err := d.Attempts.AverageScore(ctx, since, now)
	if err != nil {
		return "", err
	}
	if recentCount < scoreShiftMinSample {
		return "", nil
	}

	baselineStart := now.Add(-config.GetHistoryWindow())
	baseline, baselineCount, err := d.Attempts.AverageScore(ctx, baselineStart, since)
	if err != nil {
		return "", err
	}
	if baselineCount < scoreShiftMinSample {
		return "", nil
	}

	report.RecentAverage = recent
	report.BaselineScore = baseline

	if recent-baseline < delta {
		return "", nil
	}

	return fmt.Sprintf("mean suspicion score rose from %.2f to %.2f", baseline, recent), nil
}

// raise writes an alert unless an identical unacknowledged one is already
// open. Returns 1 when an alert was created.
func (d *Detector) raise(ctx context.Context, pattern, description string) int {
	open, err := d.Alerts.HasOpenAlert(ctx, pattern, description)
	if err != nil {
		log.Error("Detector: alert dedupe check failed", "pattern", pattern, "error", err)
		return 0
	}
	if open {
		return 0
	}

	alert := &domain.Alert{
		Pattern:     pattern,
		Description: description,
		DetectedAt:  d.now(),
	}
	if err := d.Alerts.Insert(ctx, alert); err != nil {
		log.Error("Detector: failed to persist alert", "pattern", pattern, "error", err)
		return 0
	}

	log.Warn("Attack pattern detected", "pattern", pattern, "description", description)
	return 1
}

// sweepRetention deletes ledger rows older than the retention horizon.
// Riding on the detector loop keeps the sweep on the leader instance only.
func (d *Detector) sweepRetention(ctx context.Context) {
	retentionDays := d.cfg().RetentionDays
	if retentionDays == 0 {
		return
	}

	cutoff := d.now().AddDate(0, 0, -int(retentionDays))
	removed, err := d.Attempts.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.Error("Detector: retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		log.Info("Detector: purged aged attempt records", "removed", removed, "cutoff", cutoff)
	}
}
