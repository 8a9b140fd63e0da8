// Package config loads the lockstep configuration from a YAML file and LOCKSTEP_* environment
// variables, and watches the file for modal catalog changes.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration.
type Config struct {
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Locks    []string      `mapstructure:"locks" yaml:"locks"`
	Dialogs  DialogsConfig `mapstructure:"dialogs" yaml:"dialogs"`
	HTTP     HTTPConfig    `mapstructure:"http" yaml:"http"`
	Metrics  MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Redis    RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

type DialogsConfig struct {
	// Modal lists the dialog ids that block pointer input while open.
	Modal []string `mapstructure:"modal" yaml:"modal"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// RedisConfig enables the Redis policy gateway and distributed locks when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP:     HTTPConfig{Addr: ":8080"},
		Metrics:  MetricsConfig{Enabled: true},
		Redis:    RedisConfig{Prefix: "lockstep:"},
	}
}

// envKeys maps environment variables to their position in the config tree.
var envKeys = map[string][]string{
	"LOCKSTEP_LOG_LEVEL":       {"log_level"},
	"LOCKSTEP_LOCKS":           {"locks"},
	"LOCKSTEP_DIALOGS_MODAL":   {"dialogs", "modal"},
	"LOCKSTEP_HTTP_ADDR":       {"http", "addr"},
	"LOCKSTEP_METRICS_ENABLED": {"metrics", "enabled"},
	"LOCKSTEP_REDIS_ADDR":      {"redis", "addr"},
	"LOCKSTEP_REDIS_PASSWORD":  {"redis", "password"},
	"LOCKSTEP_REDIS_DB":        {"redis", "db"},
	"LOCKSTEP_REDIS_PREFIX":    {"redis", "prefix"},
}

// Load reads path (if any) and applies environment overrides.
// A missing file is treated as an empty one.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
			}
			if raw == nil {
				raw = map[string]any{}
			}
		}
	}

	for env, keys := range envKeys {
		if v, ok := lookup(env); ok {
			set(raw, keys, v)
		}
	}

	cfg := Default()
	if err := decode(raw, &cfg, false); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func set(raw map[string]any, keys []string, v string) {
	m := raw
	for _, k := range keys[:len(keys)-1] {
		child, ok := m[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[k] = child
		}
		m = child
	}
	m[keys[len(keys)-1]] = v
}

func decode(input any, out any, strict bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Validate checks values that cannot be checked by decoding alone.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, l := range c.Locks {
		if strings.TrimSpace(l) == "" {
			return errors.New("locks: empty lock name")
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// Registry returns the built-in locks plus the configured ones.
func (c Config) Registry() *locks.Registry {
	extra := make([]domain.Lock, 0, len(c.Locks))
	for _, l := range c.Locks {
		extra = append(extra, domain.Lock(strings.TrimSpace(l)))
	}
	return locks.NewRegistry(extra...)
}

// DecodeDismissal converts a loosely typed value (JSON body, MCP arguments) into a
// dismissal policy. A nil input yields a nil policy; unknown keys are rejected.
func DecodeDismissal(input any) (*domain.DismissalPolicy, error) {
	if input == nil {
		return nil, nil
	}
	var d domain.DismissalPolicy
	if err := decode(input, &d, true); err != nil {
		return nil, fmt.Errorf("invalid dismissal policy: %w", err)
	}
	return &d, nil
}

// Watch reloads path whenever it changes and hands the result to onChange.
// Reload errors are logged and the previous configuration stays in effect.
// It blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.WarnContext(ctx, "Config reload failed", "path", path, "err", err)
				continue
			}
			logger.InfoContext(ctx, "Config reloaded", "path", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
