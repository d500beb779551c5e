// Package config loads the YAML configuration file and applies environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Output format selectors.
const (
	FormatBinary  = "binary"
	FormatTabular = "tabular"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the intraday collector.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Collect CollectConfig `yaml:"collect"`
	Logging Logging       `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	// WorkDir holds one partition file per strike until the merge consumes
	// them.
	WorkDir string `yaml:"work_dir"`
	// SQLitePath is the checkpoint and audit journal database.
	SQLitePath string `yaml:"sqlite_path"`
	// OutBase is the merged artifact path without extension; the format
	// selector decides the extension.
	OutBase string `yaml:"out_base"`
	// Format selects the merged artifact encoding: "binary" or "tabular".
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CollectConfig holds parameters for one day's acquisition run.
type CollectConfig struct {
	// Date is the trading date (YYYY-MM-DD). Empty means today.
	Date string `yaml:"date"`
	// Underlying is the index/ETF symbol used for the opening reference
	// price.
	Underlying string `yaml:"underlying"`
	// OptionRoot is the option root symbol for contract addressing.
	OptionRoot string `yaml:"option_root"`

	// NumStrikes is the number of strikes on each side of the opening
	// strike. Ignored when explicit bounds are set.
	NumStrikes int `yaml:"num_strikes"`
	// StartStrike/EndStrike are explicit strike bounds; zero means derive
	// from NumStrikes and the opening price.
	StartStrike int `yaml:"start_strike"`
	EndStrike   int `yaml:"end_strike"`
	// StrikeIncrement is the spacing of the listed strike grid.
	StrikeIncrement int `yaml:"strike_increment"`

	// SessionStart/SessionEnd override the trading session bounds (HH:MM);
	// both must land on interval boundaries. Empty means 09:30 / 16:00.
	SessionStart string `yaml:"session_start"`
	SessionEnd   string `yaml:"session_end"`
	// IntervalMinutes is the fetch window length.
	IntervalMinutes int `yaml:"interval_minutes"`
	// ResolutionSeconds is the sampling resolution of each series.
	ResolutionSeconds int `yaml:"resolution_seconds"`

	// BatchStrikes is the number of strikes per rate-limit batch.
	BatchStrikes int `yaml:"batch_strikes"`
	// RateQuota is the number of requests allowed per cooldown window.
	RateQuota int `yaml:"rate_quota"`
	// RateWindowSeconds is the cooldown duration after each batch.
	RateWindowSeconds int `yaml:"rate_window_seconds"`

	// ResumeFrom overrides the checkpoint: the batch index to start at.
	// Negative means "use the checkpoint".
	ResumeFrom int `yaml:"resume_from"`
}

// Interval returns the fetch window length as a duration.
func (c *CollectConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Resolution returns the sampling resolution as a duration.
func (c *CollectConfig) Resolution() time.Duration {
	return time.Duration(c.ResolutionSeconds) * time.Second
}

// RateWindow returns the cooldown window as a duration.
func (c *CollectConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config with the standard acquisition parameters: 30-minute
// windows, 15-strike batches, and a 10-minute-plus-margin cooldown sized for
// the provider's historical-data pacing quota. The default resolution is one
// minute, the finest the Alpaca historical bars endpoint serves; finer
// sessions can lower resolution_seconds.
func Default() *Config {
	return &Config{
		Storage: Storage{
			WorkDir:    "dl",
			SQLitePath: "intraday.db",
			OutBase:    "intraday",
			Format:     FormatBinary,
		},
		Collect: CollectConfig{
			Underlying:        "SPX",
			OptionRoot:        "SPXW",
			NumStrikes:        30,
			StrikeIncrement:   5,
			IntervalMinutes:   30,
			ResolutionSeconds: 60,
			BatchStrikes:      15,
			RateQuota:         60,
			RateWindowSeconds: 610,
			ResumeFrom:        -1,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides. A missing
// file is not an error: the defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INTRADAY_WORK_DIR"); v != "" {
		cfg.Storage.WorkDir = v
	}
	if v := os.Getenv("INTRADAY_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("INTRADAY_OUT_BASE"); v != "" {
		cfg.Storage.OutBase = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks that all required fields are set and values are valid.
// It runs before any network or file activity.
func (c *Config) Validate() error {
	if c.Storage.WorkDir == "" {
		return errors.New("storage.work_dir is required")
	}
	if c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required")
	}
	if c.Storage.OutBase == "" {
		return errors.New("storage.out_base is required")
	}
	if c.Storage.Format != FormatBinary && c.Storage.Format != FormatTabular {
		return fmt.Errorf("storage.format must be %q or %q, got %q", FormatBinary, FormatTabular, c.Storage.Format)
	}

	col := &c.Collect
	if col.Underlying == "" {
		return errors.New("collect.underlying is required")
	}
	if col.OptionRoot == "" {
		return errors.New("collect.option_root is required")
	}
	if col.StrikeIncrement < 1 {
		return errors.New("collect.strike_increment must be >= 1")
	}
	if col.StartStrike == 0 && col.EndStrike == 0 && col.NumStrikes < 1 {
		return errors.New("collect.num_strikes must be >= 1 when no explicit strike bounds are set")
	}
	if col.IntervalMinutes < 1 {
		return errors.New("collect.interval_minutes must be >= 1")
	}
	if col.ResolutionSeconds < 1 {
		return errors.New("collect.resolution_seconds must be >= 1")
	}
	if col.BatchStrikes < 1 {
		return errors.New("collect.batch_strikes must be >= 1")
	}
	if col.RateQuota < 1 {
		return errors.New("collect.rate_quota must be >= 1")
	}
	if col.RateWindowSeconds < 1 {
		return errors.New("collect.rate_window_seconds must be >= 1")
	}
	if col.Date != "" {
		if _, err := time.Parse("2006-01-02", col.Date); err != nil {
			return fmt.Errorf("collect.date: %w", err)
		}
	}
	return nil
}
