// Package config loads tasksync settings.
//
// Sources, lowest precedence first: built-in defaults, a YAML config file,
// TASKSYNC_* environment variables, and command-line flags. The merged
// result is checked against an embedded CUE schema before use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/tasksync/internal/retry"
)

//go:embed config.cue
var schemaSrc string

// EnvPrefix prefixes environment overrides: sync.batch_size is read from
// TASKSYNC_SYNC_BATCH_SIZE.
const EnvPrefix = "TASKSYNC"

// Config is the decoded configuration.
type Config struct {
	DB        string          `mapstructure:"db"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Tombstone TombstoneConfig `mapstructure:"tombstone"`
	Log       LogConfig       `mapstructure:"log"`
}

// RemoteConfig locates the authority. An empty URL disables sync.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes sync sessions.
type SyncConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	PageSize    int           `mapstructure:"page_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RetryPolicy returns the per-batch and per-page retry policy.
func (c SyncConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
	}
}

// TombstoneConfig controls purge of pushed deletions.
type TombstoneConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := retry.DefaultPolicy()
	return Config{
		DB:     "tasksync.db",
		Remote: RemoteConfig{Timeout: 30 * time.Second},
		Sync: SyncConfig{
			BatchSize:   50,
			PageSize:    100,
			MaxAttempts: p.MaxAttempts,
			BaseDelay:   p.BaseDelay,
			MaxDelay:    p.MaxDelay,
		},
		Tombstone: TombstoneConfig{Retention: 30 * 24 * time.Hour},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is an explicit config file. It must exist when set.
	File string

	// SearchPaths are searched for tasksync.yaml when File is empty.
	// Default: the working directory and $HOME/.config/tasksync.
	SearchPaths []string

	// Flags, when set, override file and environment values. Recognized
	// flags: db, remote, timeout, batch-size.
	Flags *pflag.FlagSet
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"db":         "db",
	"remote":     "remote.url",
	"timeout":    "remote.timeout",
	"batch-size": "sync.batch_size",
}

// Load merges all sources and validates the result.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("tasksync")
		v.SetConfigType("yaml")
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{".", "$HOME/.config/tasksync"}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			f := opts.Flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("db", d.DB)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("sync.batch_size", d.Sync.BatchSize)
	v.SetDefault("sync.page_size", d.Sync.PageSize)
	v.SetDefault("sync.max_attempts", d.Sync.MaxAttempts)
	v.SetDefault("sync.base_delay", d.Sync.BaseDelay)
	v.SetDefault("sync.max_delay", d.Sync.MaxDelay)
	v.SetDefault("tombstone.retention", d.Tombstone.Retention)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("config.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	value := ctx.Encode(encode(cfg))
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// ValidationError reports a configuration that violates the schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// encode flattens cfg into the shape the schema describes.
func encode(cfg Config) map[string]any {
	return map[string]any{
		"db": cfg.DB,
		"remote": map[string]any{
			"url":        cfg.Remote.URL,
			"timeout_ms": cfg.Remote.Timeout.Milliseconds(),
		},
		"sync": map[string]any{
			"batch_size":    cfg.Sync.BatchSize,
			"page_size":     cfg.Sync.PageSize,
			"max_attempts":  cfg.Sync.MaxAttempts,
			"base_delay_ms": cfg.Sync.BaseDelay.Milliseconds(),
			"max_delay_ms":  cfg.Sync.MaxDelay.Milliseconds(),
		},
		"tombstone": map[string]any{
			"retention_ms": cfg.Tombstone.Retention.Milliseconds(),
		},
		"log": map[string]any{
			"file":         cfg.Log.File,
			"level":        cfg.Log.Level,
			"format":       cfg.Log.Format,
			"max_size_mb":  cfg.Log.MaxSizeMB,
			"max_backups":  cfg.Log.MaxBackups,
			"max_age_days": cfg.Log.MaxAgeDays,
		},
	}
}
