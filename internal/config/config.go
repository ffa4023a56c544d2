// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server configuration.
type Config struct {
	Addr        string `env:"BATTLE_ADDR" envDefault:":8080"`
	DBDriver    string `env:"BATTLE_DB_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	TurnTimeout       time.Duration `env:"BATTLE_TURN_TIMEOUT" envDefault:"30s"`
	SweepInterval     time.Duration `env:"BATTLE_SWEEP_INTERVAL" envDefault:"10s"`
	SweepPageSize     int           `env:"BATTLE_SWEEP_PAGE_SIZE" envDefault:"50"`
	ReconcileInterval time.Duration `env:"BATTLE_RATING_RECONCILE_INTERVAL" envDefault:"1m"`
	MatchmakeInterval time.Duration `env:"BATTLE_MATCHMAKE_INTERVAL" envDefault:"15s"`
	HubIdle           time.Duration `env:"BATTLE_HUB_IDLE" envDefault:"24h"`
	HubPruneInterval  time.Duration `env:"BATTLE_HUB_PRUNE_INTERVAL" envDefault:"1h"`
	RatingK           int           `env:"BATTLE_RATING_K" envDefault:"32"`
	CatalogPath       string        `env:"BATTLE_CATALOG_PATH"`

	RedisURL string `env:"REDIS_URL"`

	Replay Replay

	LogLevel  string `env:"BATTLE_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"BATTLE_LOG_PRETTY" envDefault:"false"`
}

// Replay configures the replay archive. It is disabled without a bucket.
type Replay struct {
	Bucket          string `env:"BATTLE_REPLAY_BUCKET"`
	Prefix          string `env:"BATTLE_REPLAY_PREFIX" envDefault:"replays"`
	Region          string `env:"BATTLE_REPLAY_REGION" envDefault:"auto"`
	Endpoint        string `env:"BATTLE_REPLAY_ENDPOINT"`
	AccessKeyID     string `env:"BATTLE_REPLAY_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"BATTLE_REPLAY_SECRET_ACCESS_KEY"`
}

// Enabled reports whether replays should be archived.
func (r Replay) Enabled() bool { return r.Bucket != "" }

// Load reads an optional .env file and then the environment. Variables that
// are already set win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported BATTLE_DB_DRIVER %q", c.DBDriver)
	}
	if c.TurnTimeout < 0 {
		return errors.New("BATTLE_TURN_TIMEOUT must not be negative")
	}
	if c.SweepPageSize <= 0 {
		return errors.New("BATTLE_SWEEP_PAGE_SIZE must be positive")
	}
	if c.RatingK <= 0 {
		return errors.New("BATTLE_RATING_K must be positive")
	}
	return nil
}
