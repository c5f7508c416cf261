package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rendis/conduit/internal/app"
	"github.com/rendis/conduit/internal/cache"
	"github.com/rendis/conduit/internal/engine"
	"github.com/rendis/conduit/internal/retention"
)

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Days     int    `mapstructure:"days"`
	Schedule string `mapstructure:"schedule"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Config holds all conduit configuration.
// Priority: flags > CONDUIT_* env vars > settings file > defaults.
type Config struct {
	ListenAddr string          `mapstructure:"listen_addr"`
	DBPath     string          `mapstructure:"db_path"`
	LogLevel   string          `mapstructure:"log_level"`
	LogFormat  string          `mapstructure:"log_format"`
	Deadline   time.Duration   `mapstructure:"deadline"`
	PoolSize   int             `mapstructure:"pool_size"`
	LogBuffer  int             `mapstructure:"log_buffer"`
	Workspace  string          `mapstructure:"workspace"`
	Cache      CacheConfig     `mapstructure:"cache"`
	Breaker    BreakerConfig   `mapstructure:"breaker"`
	Retention  RetentionConfig `mapstructure:"retention"`
	Tracing    TracingConfig   `mapstructure:"tracing"`
}

func conduitDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conduit"
	}
	return filepath.Join(home, ".conduit")
}

func settingsPath() string {
	return filepath.Join(conduitDir(), "settings.yaml")
}

func setDefaults(v *viper.Viper) {
	breaker := engine.DefaultCircuitBreakerConfig()

	v.SetDefault("listen_addr", ":4100")
	v.SetDefault("db_path", filepath.Join(conduitDir(), "conduit.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("deadline", engine.DefaultDeadline)
	v.SetDefault("pool_size", 0)
	v.SetDefault("log_buffer", 0)
	v.SetDefault("workspace", "")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("breaker.threshold", breaker.FailureThreshold)
	v.SetDefault("breaker.cooldown", breaker.Cooldown)
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.days", retention.DefaultDays)
	v.SetDefault("retention.schedule", retention.DefaultSchedule)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// loadConfig resolves the layered configuration. An explicit cfgFile must
// exist; the default settings file is optional.
func loadConfig(v *viper.Viper, cfgFile string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("CONDUIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(settingsPath()); err == nil {
			path = settingsPath()
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat settings: %w", err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// bindFlag makes flag override key when it is set on the command line.
func bindFlag(v *viper.Viper, key string, fs *pflag.FlagSet, name string) {
	if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// appConfig maps the CLI configuration onto the wiring configuration.
func (c Config) appConfig(logOutput io.Writer) app.Config {
	return app.Config{
		DBPath:    c.DBPath,
		LogLevel:  c.LogLevel,
		LogFormat: c.LogFormat,
		LogOutput: logOutput,
		Deadline:  c.Deadline,
		PoolSize:  c.PoolSize,
		LogBuffer: c.LogBuffer,
		Cache: app.CacheConfig{
			Enabled:       c.Cache.Enabled,
			TTL:           c.Cache.TTL,
			RedisAddr:     c.Cache.RedisAddr,
			RedisPassword: c.Cache.RedisPassword,
			RedisDB:       c.Cache.RedisDB,
		},
		Breaker: app.BreakerConfig{
			Threshold: c.Breaker.Threshold,
			Cooldown:  c.Breaker.Cooldown,
		},
		Workspace: c.Workspace,
		Tracing: app.TracingConfig{
			Endpoint:   c.Tracing.Endpoint,
			SampleRate: c.Tracing.SampleRate,
		},
		Version: version,
	}
}
