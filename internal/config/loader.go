package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env
// vars. Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if KALWATCH_CONFIG is set
//  3. env (prefix KALWATCH_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("KALWATCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: KALWATCH_LIMIT, KALWATCH_MAX_RUN, ...
	// Underscores are preserved so keys match the koanf struct tags.
	envProvider := env.Provider("KALWATCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "kalwatch_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if c.MarginalLow < 0 || c.MarginalHigh <= c.MarginalLow {
		return errors.New("marginal band must satisfy 0 <= low < high")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.LowLockMaxSec <= c.LowLockMinSec {
		return errors.New("low_lock_max_sec must exceed low_lock_min_sec")
	}
	return nil
}
