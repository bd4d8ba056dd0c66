// Package config loads treecep settings from the environment.
//
// Values are read from TREECEP_* variables, optionally seeded from a .env
// file. Variables already set in the process environment win over the
// file. CLI flags default to the loaded values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/roach88/treecep/internal/engine"
	"github.com/roach88/treecep/internal/plan"
	"github.com/roach88/treecep/internal/unify"
)

// Prefix is prepended to every variable name.
const Prefix = "TREECEP_"

// NoSharing disables multi-pattern unification when used as Strategy.
const NoSharing = "none"

// Config holds runtime settings.
type Config struct {
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	Database          string        `env:"DATABASE"`
	Mode              string        `env:"MODE" envDefault:"sequential"`
	Strategy          string        `env:"STRATEGY" envDefault:"TREE_PLAN_SUBTREES_UNION"`
	PlanOrder         string        `env:"PLAN_ORDER" envDefault:"TRIVIAL_LEFT_DEEP_TREE"`
	Statistics        string        `env:"STATISTICS"`
	Parallelism       int           `env:"PARALLELISM" envDefault:"4"`
	PartitionKey      string        `env:"PARTITION_KEY"`
	Broadcast         bool          `env:"BROADCAST"`
	MaxPartialMatches int           `env:"MAX_PARTIAL_MATCHES" envDefault:"0"`
	FollowIdle        time.Duration `env:"FOLLOW_IDLE" envDefault:"0s"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisStream       string        `env:"REDIS_STREAM" envDefault:"treecep:matches"`
}

// Load reads dotenv (when non-empty) and then the environment.
// An empty dotenv tries ".env" in the working directory and ignores a
// missing file; an explicit path must exist.
func Load(dotenv string) (Config, error) {
	if dotenv == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(dotenv); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if _, err := engine.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SharingStrategy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := plan.ParseOrder(c.PlanOrder); err != nil {
		errs = append(errs, err)
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("%sPARALLELISM must be at least 1, got %d", Prefix, c.Parallelism))
	}
	if c.MaxPartialMatches < 0 {
		errs = append(errs, fmt.Errorf("%sMAX_PARTIAL_MATCHES must not be negative, got %d", Prefix, c.MaxPartialMatches))
	}
	if c.FollowIdle < 0 {
		errs = append(errs, fmt.Errorf("%sFOLLOW_IDLE must not be negative, got %s", Prefix, c.FollowIdle))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel (debug, info, warn, error).
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	return lvl, nil
}

// SharingStrategy parses Strategy. NoSharing yields the empty strategy:
// patterns share one forest but no nodes.
func (c Config) SharingStrategy() (unify.Strategy, error) {
	if strings.EqualFold(strings.TrimSpace(c.Strategy), NoSharing) {
		return "", nil
	}
	s, err := unify.ParseStrategy(c.Strategy)
	if err != nil {
		return "", fmt.Errorf("%sSTRATEGY: %w", Prefix, err)
	}
	return s, nil
}
