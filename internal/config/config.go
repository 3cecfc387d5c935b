// Package config loads marktree settings from marktree.yaml, MARKTREE_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the full application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	File      FileConfig      `mapstructure:"file"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Drag      DragConfig      `mapstructure:"drag"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Seed is an optional YAML tree loaded into the memory backend.
	Seed string `mapstructure:"seed"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// LockTTL bounds how long a cross-process move lock may be held.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type FileConfig struct {
	Path     string        `mapstructure:"path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ReconcileConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type DragConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

var defaults = map[string]any{
	"log.level":        "info",
	"log.format":       "text",
	"store.backend":    BackendMemory,
	"store.seed":       "",
	"redis.addr":       "localhost:6379",
	"redis.password":   "",
	"redis.db":         0,
	"redis.prefix":     "marktree:",
	"redis.lock_ttl":   "30s",
	"file.path":        ".marktree/bookmarks.json",
	"file.debounce":    "100ms",
	"http.addr":        ":8080",
	"reconcile.window": "50ms",
	"drag.stale_after": "10s",
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"store":      "store.backend",
	"seed":       "store.seed",
	"redis-addr": "redis.addr",
	"file":       "file.path",
	"addr":       "http.addr",
}

// Load reads the configuration. path names an explicit config file; when empty,
// marktree.yaml is searched in the working directory and $HOME/.config/marktree.
// Flags present in flags (see FlagKeys) override file and environment values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("MARKTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("marktree")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/marktree")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed by types alone.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q (want memory, file or redis)", c.Store.Backend)
	}
	if c.Store.Backend == BackendFile && c.File.Path == "" {
		return errors.New("file backend requires file.path")
	}
	if c.Store.Backend == BackendRedis && c.Redis.Addr == "" {
		return errors.New("redis backend requires redis.addr")
	}
	for name, d := range map[string]time.Duration{
		"file.debounce":    c.File.Debounce,
		"reconcile.window": c.Reconcile.Window,
		"drag.stale_after": c.Drag.StaleAfter,
		"redis.lock_ttl":   c.Redis.LockTTL,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
