package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPageSize         = 50
	DefaultBackfillWorkers  = 4
	DefaultUpstreamTimeoutS = 30
)

// ErrUpstreamNotConfigured is returned when backfill is requested without an
// upstream base URL and token. It must surface before any network call.
var ErrUpstreamNotConfigured = errors.New("upstream base_url and token are required for backfill")

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// UpstreamConfig identifies the provider instance backfill imports from.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url" validate:"omitempty,url"`
	Token           string `toml:"token"`
	PageSize        int    `toml:"page_size" validate:"omitempty,gt=0"`
	TimeoutSeconds  int    `toml:"timeout_seconds" validate:"omitempty,gt=0"`
	BackfillWorkers int    `toml:"backfill_workers" validate:"omitempty,gt=0"`
	// BackfillCron, when set, re-runs the historical import on a schedule
	// (standard cron expression). Empty disables scheduled backfill.
	BackfillCron string `toml:"backfill_cron"`
}

// Validate checks that the upstream section is usable for backfill.
func (u UpstreamConfig) Validate() error {
	if u.BaseURL == "" || u.Token == "" {
		return ErrUpstreamNotConfigured
	}
	if err := validator.New().Struct(u); err != nil {
		return fmt.Errorf("upstream config invalid: %w", err)
	}
	return nil
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Upstream: UpstreamConfig{
			PageSize:        DefaultPageSize,
			TimeoutSeconds:  DefaultUpstreamTimeoutS,
			BackfillWorkers: DefaultBackfillWorkers,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
