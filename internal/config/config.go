// Package config loads the movegrade binary configuration from defaults, an
// optional config file, MOVEGRADE_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/discochess/movegrade/internal/coordinator"
)

// EnvPrefix prefixes every environment variable, e.g. MOVEGRADE_DATABASE_DSN.
const EnvPrefix = "MOVEGRADE"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrInvalid is returned for configurations that cannot be run.
var ErrInvalid = errors.New("config: invalid")

// Config is the full binary configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Store    Store    `mapstructure:"store"`
	Engine   Engine   `mapstructure:"engine"`
	Analysis Analysis `mapstructure:"analysis"`
	Sweep    Sweep    `mapstructure:"sweep"`
	Redis    Redis    `mapstructure:"redis"`
	Cache    Cache    `mapstructure:"cache"`
	Export   Export   `mapstructure:"export"`
	ChessCom ChessCom `mapstructure:"chesscom"`
	Jobs     Jobs     `mapstructure:"jobs"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Store struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
	Codec   string `mapstructure:"codec"`
}

type Engine struct {
	Path    string `mapstructure:"path"`
	Depth   int    `mapstructure:"depth"`
	HashMB  int    `mapstructure:"hash_mb"`
	Threads int    `mapstructure:"threads"`
	Pool    int    `mapstructure:"pool"`
}

type Analysis struct {
	BatchSize        int           `mapstructure:"batch_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	Pause            time.Duration `mapstructure:"pause"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MaxStoreFailures int           `mapstructure:"max_store_failures"`
	GameTimeout      time.Duration `mapstructure:"game_timeout"`
	CommitTimeout    time.Duration `mapstructure:"commit_timeout"`
}

type Sweep struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// Redis enables the distributed drain lock when Addr is set.
type Redis struct {
	Addr    string        `mapstructure:"addr"`
	LockKey string        `mapstructure:"lock_key"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// Cache sizes the analysis cache. Zero disables it.
type Cache struct {
	Size int `mapstructure:"size"`
}

type Export struct {
	Dest  string `mapstructure:"dest"`
	Codec string `mapstructure:"codec"`
}

type ChessCom struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Jobs struct {
	History int `mapstructure:"history"`
}

var defaults = map[string]any{
	"server.addr": ":8080",

	"store.driver":  DriverPostgres,
	"store.dsn":     "",
	"store.migrate": true,
	"store.codec":   "zstd",

	"engine.path":    "stockfish",
	"engine.depth":   12,
	"engine.hash_mb": 64,
	"engine.threads": 1,
	"engine.pool":    8,

	"analysis.batch_size":         10,
	"analysis.concurrency":        8,
	"analysis.pause":              time.Second,
	"analysis.max_attempts":       3,
	"analysis.max_store_failures": 5,
	"analysis.game_timeout":       10 * time.Minute,
	"analysis.commit_timeout":     30 * time.Second,

	"sweep.interval":    time.Minute,
	"sweep.stale_after": 30 * time.Minute,

	"redis.addr":     "",
	"redis.lock_key": "movegrade:drain",
	"redis.lock_ttl": 30 * time.Second,

	"cache.size": 1024,

	"export.dest":  "export",
	"export.codec": "zstd",

	"chesscom.base_url": "https://api.chess.com/pub",
	"chesscom.timeout":  30 * time.Second,

	"jobs.history": 64,
}

// Load reads the configuration. path may be empty. flags maps config keys
// such as "server.addr" to the command-line flags that override them.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	for key, f := range flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", f.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot be run.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the postgres driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Analysis.BatchSize <= 0 || c.Analysis.Concurrency <= 0 {
		return fmt.Errorf("%w: analysis.batch_size and analysis.concurrency must be positive", ErrInvalid)
	}
	if c.Engine.Pool < c.Analysis.Concurrency {
		return fmt.Errorf("%w: engine.pool (%d) is smaller than analysis.concurrency (%d)",
			ErrInvalid, c.Engine.Pool, c.Analysis.Concurrency)
	}
	lifetime := coordinator.ClaimLifetime(c.Analysis.BatchSize, c.Analysis.Concurrency,
		c.Analysis.GameTimeout, c.Analysis.CommitTimeout)
	if c.Sweep.StaleAfter <= lifetime {
		return fmt.Errorf("%w: sweep.stale_after (%v) must exceed the longest claim of a live batch (%v)",
			ErrInvalid, c.Sweep.StaleAfter, lifetime)
	}
	return nil
}
