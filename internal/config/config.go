// Package config defines the scanner configuration and its loading
// order: defaults, then an optional YAML file, then environment
// variables.
package config

import "runtime"

// Config contains process configuration for the dwell scanner.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Limit is the residual threshold in arcseconds for a slot to count
	// as locked.
	Limit float64 `koanf:"limit"`

	// MarginalLow and MarginalHigh bound the marginal-offset band in
	// arcseconds for anomaly detection.
	MarginalLow  float64 `koanf:"marginal_low"`
	MarginalHigh float64 `koanf:"marginal_high"`

	// MinCount is the discounted onboard count below which a sample is
	// suspicious.
	MinCount int `koanf:"min_count"`

	// MaxRun is how many consecutive suspicious samples are tolerated
	// before a dwell is flagged.
	MaxRun int `koanf:"max_run"`

	// LowLockThreshold and the duration bounds (seconds) select the
	// short low-count intervals worth mapping back to dwells.
	LowLockThreshold int     `koanf:"low_lock_threshold"`
	LowLockMinSec    float64 `koanf:"low_lock_min_sec"`
	LowLockMaxSec    float64 `koanf:"low_lock_max_sec"`

	// Workers bounds the per-dwell classification pool.
	Workers int `koanf:"workers"`

	// NowFlags disables the date-dependent DP/MS flag checks, for
	// near-real-time scans.
	NowFlags bool `koanf:"now_flags"`

	// ResultsDB is the SQLite path for suspect-dwell findings; empty
	// disables persistence.
	ResultsDB string `koanf:"results_db"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Limit:            20,
		MarginalLow:      5,
		MarginalHigh:     20,
		MinCount:         3,
		MaxRun:           8,
		LowLockThreshold: 2,
		LowLockMinSec:    60,
		LowLockMaxSec:    120,
		Workers:          runtime.NumCPU(),
	}
}
