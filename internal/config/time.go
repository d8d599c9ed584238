package config

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer mirrors the JSON shape operators edit; it is converted to a
// time.Duration before use.
type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const (
	defaultRateWindow       = 15 * time.Minute
	defaultBlockDuration    = time.Hour
	defaultHistoryWindow    = 24 * time.Hour
	defaultDetectorInterval = 5 * time.Minute
	defaultBlockRefresh     = time.Minute
)

var (
	rateWindow                time.Duration = defaultRateWindow
	blockDuration             time.Duration = defaultBlockDuration
	historyWindow             time.Duration = defaultHistoryWindow
	detectorInterval          atomic.Value
	blockRefreshInterval      atomic.Value
	windowMu                  sync.RWMutex
	detectorIntervalListeners []chan time.Duration
	blockRefreshListeners     []chan time.Duration
	listenersMu               sync.Mutex
)

func init() {
	detectorInterval.Store(defaultDetectorInterval)
	blockRefreshInterval.Store(defaultBlockRefresh)
}

// SetBetweenTime recomputes all derived intervals from the current config.
// Called under configMu from applyConfigUpdate.
func SetBetweenTime() {
	cfg := GetConfig()

	windowMu.Lock()
	rateWindow = timerOrDefault(cfg.RateWindow, defaultRateWindow)
	blockDuration = timerOrDefault(cfg.BlockDuration, defaultBlockDuration)
	historyWindow = timerOrDefault(cfg.HistoryWindow, defaultHistoryWindow)
	windowMu.Unlock()

	setDetectorInterval(timerOrDefault(cfg.Detector.Interval, defaultDetectorInterval))
	setBlockRefreshInterval(timerOrDefault(cfg.BlockRefresh, defaultBlockRefresh))
}

// CalculateBetweenTime converts a Timer to a duration with a one second floor.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func timerOrDefault(timer Timer, fallback time.Duration) time.Duration {
	if timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0 {
		return fallback
	}
	return CalculateBetweenTime(timer)
}

// GetRateWindow returns the fixed rate-limit window length.
func GetRateWindow() time.Duration {
	windowMu.RLock()
	defer windowMu.RUnlock()
	return rateWindow
}

// GetBlockDuration returns how long automatic and default manual blocks last.
func GetBlockDuration() time.Duration {
	windowMu.RLock()
	defer windowMu.RUnlock()
	return blockDuration
}

// GetHistoryWindow returns the scoring lookback window.
func GetHistoryWindow() time.Duration {
	windowMu.RLock()
	defer windowMu.RUnlock()
	return historyWindow
}

func GetDetectorInterval() time.Duration {
	return detectorInterval.Load().(time.Duration)
}

// DetectorIntervalUpdates delivers the current interval immediately and every
// change afterwards. Slow listeners miss intermediate values, never block.
func DetectorIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	detectorIntervalListeners = append(detectorIntervalListeners, ch)
	listenersMu.Unlock()

	ch <- GetDetectorInterval()
	return ch
}

func setDetectorInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultDetectorInterval
	}

	current := GetDetectorInterval()
	if current == interval {
		return
	}

	detectorInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range detectorIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func GetBlockRefreshInterval() time.Duration {
	return blockRefreshInterval.Load().(time.Duration)
}

func BlockRefreshIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	blockRefreshListeners = append(blockRefreshListeners, ch)
	listenersMu.Unlock()

	ch <- GetBlockRefreshInterval()
	return ch
}

func setBlockRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultBlockRefresh
	}

	current := GetBlockRefreshInterval()
	if current == interval {
		return
	}

	blockRefreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range blockRefreshListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}
