package goCred

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ConfigFromEnv returns the default configuration overlaid with any
// GOCRED_* environment variables. Durations use Go syntax ("15m", "24h").
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
