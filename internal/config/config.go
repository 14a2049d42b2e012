// Package config loads the tracker configuration from an optional JSONC
// file. Comments and trailing commas are allowed; the file is standardized
// to plain JSON before decoding.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"tracker/internal/models"
)

// Config holds all runtime options.
type Config struct {
	Addr           string          `json:"addr"`
	DBPath         string          `json:"db_path"`
	StaticDir      string          `json:"static_dir"`
	Statuses       []models.Status `json:"statuses,omitempty"`
	StoreTimeout   Duration        `json:"store_timeout"`
	TelegramToken  string          `json:"telegram_token,omitempty"`
	TelegramAPIURL string          `json:"telegram_api_url,omitempty"`
}

// Duration wraps time.Duration with string JSON encoding ("15s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:         ":8080",
		DBPath:       "data/tracker.db",
		StaticDir:    "web/dist",
		StoreTimeout: Duration(15 * time.Second),
	}
}

// Load reads the config file at path and merges it over the defaults.
// An empty path or a missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("standardize config %s: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// StatusSet returns the configured statuses, falling back to the default
// board columns when the file defines none.
func (c Config) StatusSet() models.StatusSet {
	if len(c.Statuses) == 0 {
		return models.DefaultStatuses()
	}
	return models.StatusSet(c.Statuses)
}
