// Package bot assembles the expense-splitting bot: configuration, storage,
// conversational flows, the command registry, and background jobs.
package bot

import (
	"fmt"

	"github.com/raswise/raswise/api"
	"github.com/raswise/raswise/bot/blob"
	"github.com/raswise/raswise/bot/session"
	coreconfig "github.com/raswise/raswise/core/config"
	"github.com/raswise/raswise/core/database"
)

// Config is the full application configuration: the shared core settings
// plus the app-specific sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config     `yaml:"database"`
	Redis    session.RedisConfig `yaml:"redis"`
	Blob     blob.S3Config       `yaml:"blob"`
	API      api.Config          `yaml:"api"`
}

// LoadConfig reads YAML from path, applies environment overrides, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.API.Enabled {
		if cfg.API.Addr == "" {
			cfg.API.Addr = ":8080"
		}
		if cfg.API.JWTSecret == "" {
			return nil, fmt.Errorf("config: api.jwt_secret is required when the API is enabled")
		}
	}
	return &cfg, nil
}
