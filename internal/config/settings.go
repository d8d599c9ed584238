package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Config is the hot-reloadable protection configuration. Readers always get
// a consistent snapshot via GetConfig; writers replace the whole value under
// configMu, never mutate fields in place.
type Config struct {
	Enabled           bool  `json:"enabled"`
	RolloutPercentage uint8 `json:"rollout_percentage"`

	MaxAttemptsPerIP    uint32 `json:"max_attempts_per_ip"`
	MaxAttemptsPerEmail uint32 `json:"max_attempts_per_email"`
	RateWindow          Timer  `json:"rate_window"`
	BlockDuration       Timer  `json:"block_duration"`

	RequireCaptchaThreshold float64 `json:"require_captcha_threshold"`
	DenyThreshold           float64 `json:"deny_threshold"`
	AutoBlockThreshold      float64 `json:"auto_block_threshold"`

	Weights ScoreWeights `json:"weights"`

	AllowedCountries []string `json:"allowed_countries"`
	BlockedCountries []string `json:"blocked_countries"`

	// HistoryWindow bounds the lookback for fingerprint reuse and failure
	// ratio signals; FailureLookback is the per-IP attempt sample size.
	HistoryWindow   Timer  `json:"history_window"`
	FailureLookback uint32 `json:"failure_lookback"`

	Captcha struct {
		VerifyURL string `json:"verify_url"`
		Secret    string `json:"secret"`
	} `json:"captcha"`

	Detector struct {
		Interval             Timer   `json:"interval"`
		SubnetBurstThreshold uint32  `json:"subnet_burst_threshold"`
		DomainBurstThreshold uint32  `json:"domain_burst_threshold"`
		ScoreShiftDelta      float64 `json:"score_shift_delta"`
	} `json:"detector"`

	RetentionDays uint32 `json:"retention_days"`

	BlockRefresh Timer `json:"block_refresh"`
}

// ScoreWeights are the tunable signal weights for the suspicion scorer.
// Velocity, Geo, Fingerprint and Failures are normalised against each other;
// DomainList is the raw additive term a blacklisted domain contributes, so a
// blacklist hit alone can cross the deny threshold.
type ScoreWeights struct {
	Velocity    float64 `json:"velocity"`
	DomainList  float64 `json:"domain_list"`
	Geo         float64 `json:"geo"`
	Fingerprint float64 `json:"fingerprint"`
	Failures    float64 `json:"failures"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	cfg, err := parseConfig(defaultConfig)
	if err != nil {
		cfg = Config{Enabled: true, RolloutPercentage: 100}
	}
	configValue.Store(cfg)
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadSettings loads the persisted configuration, creating the file with the
// embedded defaults on first start.
func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}

			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	newConfig, err := parseConfig(data)
	if err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

// SetConfig replaces the configuration, persists it and broadcasts the update
// to the other instances.
func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

// SetEnabled flips only the kill-switch, keeping everything else as is.
// This is the emergency-disable path and must stay cheap.
func SetEnabled(enabled bool) {
	cfg := GetConfig()
	cfg.Enabled = enabled

	if err := applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, broadcast: true, source: "kill-switch"}); err != nil {
		log.Error("Error applying kill-switch update:", err)
	}
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	newConfig.clampTunables()
	configValue.Store(newConfig)
	SetBetweenTime()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration:", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
			log.Error("Error writing new configuration to file:", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast:", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update:", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

// clampTunables keeps operator-supplied values inside sane ranges instead of
// rejecting the whole update.
func (c *Config) clampTunables() {
	if c.RolloutPercentage > 100 {
		c.RolloutPercentage = 100
	}
	if c.MaxAttemptsPerIP == 0 {
		c.MaxAttemptsPerIP = 5
	}
	if c.MaxAttemptsPerEmail == 0 {
		c.MaxAttemptsPerEmail = 3
	}
	if c.FailureLookback == 0 {
		c.FailureLookback = 20
	}

	c.RequireCaptchaThreshold = clampUnit(c.RequireCaptchaThreshold, 0.5)
	c.DenyThreshold = clampUnit(c.DenyThreshold, 0.85)
	c.AutoBlockThreshold = clampUnit(c.AutoBlockThreshold, 0.95)
}

func clampUnit(value, fallback float64) float64 {
	if value <= 0 || value > 1 {
		return fallback
	}
	return value
}

// GetConfig returns the current configuration snapshot atomically.
func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
