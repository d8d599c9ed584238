package config

import (
	"testing"
	"time"
)

func TestCalculateMillisecondsOfPeriod(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMillisecondsOfPeriod(timer); got != want {
		t.Fatalf("CalculateMillisecondsOfPeriod returned %d, want %d", got, want)
	}
}

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{Minutes: 1, Seconds: 30}); got != 90*time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1m30s", got)
		}
	})
}

func TestSetBetweenTime(t *testing.T) {
	origCfg := GetConfig()
	origRate := GetRateWindow()
	origBlock := GetBlockDuration()
	origHistory := GetHistoryWindow()
	origDetector := GetDetectorInterval()
	origRefresh := GetBlockRefreshInterval()
	origDetectorListeners := detectorIntervalListeners
	origRefreshListeners := blockRefreshListeners

	t.Cleanup(func() {
		configValue.Store(origCfg)
		windowMu.Lock()
		rateWindow = origRate
		blockDuration = origBlock
		historyWindow = origHistory
		windowMu.Unlock()
		detectorInterval.Store(origDetector)
		blockRefreshInterval.Store(origRefresh)
		detectorIntervalListeners = origDetectorListeners
		blockRefreshListeners = origRefreshListeners
	})

	testCfg := Config{}
	testCfg.RateWindow = Timer{Minutes: 5}
	testCfg.BlockDuration = Timer{Hours: 2}
	testCfg.HistoryWindow = Timer{Hours: 12}
	testCfg.Detector.Interval = Timer{Minutes: 1}
	testCfg.BlockRefresh = Timer{Seconds: 30}

	configValue.Store(testCfg)
	SetBetweenTime()

	if got := GetRateWindow(); got != 5*time.Minute {
		t.Fatalf("rate window %s, want 5m", got)
	}
	if got := GetBlockDuration(); got != 2*time.Hour {
		t.Fatalf("block duration %s, want 2h", got)
	}
	if got := GetHistoryWindow(); got != 12*time.Hour {
		t.Fatalf("history window %s, want 12h", got)
	}
	if got := GetDetectorInterval(); got != time.Minute {
		t.Fatalf("detector interval %s, want 1m", got)
	}
	if got := GetBlockRefreshInterval(); got != 30*time.Second {
		t.Fatalf("block refresh interval %s, want 30s", got)
	}
}

func TestSetBetweenTime_ZeroTimersKeepDefaults(t *testing.T) {
	origCfg := GetConfig()
	origRate := GetRateWindow()
	origBlock := GetBlockDuration()
	origHistory := GetHistoryWindow()

	t.Cleanup(func() {
		configValue.Store(origCfg)
		windowMu.Lock()
		rateWindow = origRate
		blockDuration = origBlock
		historyWindow = origHistory
		windowMu.Unlock()
	})

	configValue.Store(Config{})
	SetBetweenTime()

	if got := GetRateWindow(); got != defaultRateWindow {
		t.Fatalf("rate window %s, want default %s", got, defaultRateWindow)
	}
	if got := GetBlockDuration(); got != defaultBlockDuration {
		t.Fatalf("block duration %s, want default %s", got, defaultBlockDuration)
	}
}

func TestDetectorIntervalUpdates_DeliversCurrentValueFirst(t *testing.T) {
	origListeners := detectorIntervalListeners
	t.Cleanup(func() {
		detectorIntervalListeners = origListeners
	})

	updates := DetectorIntervalUpdates()

	select {
	case got := <-updates:
		if got != GetDetectorInterval() {
			t.Fatalf("initial interval %s, want %s", got, GetDetectorInterval())
		}
	default:
		t.Fatal("updates channel did not deliver the current interval")
	}
}
