// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads promptd settings from promptd.yaml, PROMPTD_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultConfigFileName is searched for without extension.
	DefaultConfigFileName = "promptd"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PROMPTD"
)

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
)

// Config is the full daemon configuration.
type Config struct {
	StorageBackend               string `mapstructure:"storage_backend" validate:"oneof=memory file postgres sqlite mysql"`
	RetainHistory                bool   `mapstructure:"retain_history"`
	MaxVersionsPerPrompt         int    `mapstructure:"max_versions_per_prompt" validate:"gte=0"`
	ConnectionIdleTimeoutSeconds int    `mapstructure:"connection_idle_timeout_seconds" validate:"gte=0"`

	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Registry RegistryConfig `mapstructure:"registry"`
	Events   EventsConfig   `mapstructure:"events"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host                   string   `mapstructure:"host"`
	Port                   int      `mapstructure:"port" validate:"gte=1,lte=65535"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
}

// StorageConfig holds per-backend settings. Only the section matching
// storage_backend is read.
type StorageConfig struct {
	File     FileConfig     `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
}

// FileConfig configures the directory adapter.
type FileConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// PostgresConfig configures the pgx pool. DSN takes precedence over the
// individual connection fields.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Schema   string `mapstructure:"schema"`

	MaxConns                   int32 `mapstructure:"max_conns"`
	MinConns                   int32 `mapstructure:"min_conns"`
	MaxIdleTimeSeconds         int   `mapstructure:"max_idle_time_seconds"`
	MaxLifetimeSeconds         int   `mapstructure:"max_lifetime_seconds"`
	HealthCheckIntervalSeconds int   `mapstructure:"health_check_interval_seconds"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// SQLiteConfig configures the embedded SQLite adapter.
type SQLiteConfig struct {
	Path          string `mapstructure:"path"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

// MySQLConfig configures the MySQL adapter.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RegistryConfig tunes the prompt registry.
type RegistryConfig struct {
	CacheTTLSeconds    int    `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	CompactionSchedule string `mapstructure:"compaction_schedule"`
	SearchEnabled      bool   `mapstructure:"search_enabled"`
}

// EventsConfig selects the change event bus.
type EventsConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=local redis"`
	RedisURL string `mapstructure:"redis_url"`
	Channel  string `mapstructure:"channel"`
}

// SessionConfig tunes protocol sessions.
type SessionConfig struct {
	QueueSize           int `mapstructure:"queue_size" validate:"gte=1"`
	RenderRetryAttempts int `mapstructure:"render_retry_attempts" validate:"gte=1"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json text auto"`
	File   string `mapstructure:"file"`
}

// IdleTimeout is connection_idle_timeout_seconds as a duration. Zero
// disables idle reaping.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.ConnectionIdleTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// CacheTTL is the registry read cache lifetime. Zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Registry.CacheTTLSeconds) * time.Second
}

// Addr is the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SetDefaults registers default values on v. Every key is registered so
// that environment overrides apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage_backend", BackendMemory)
	v.SetDefault("retain_history", false)
	v.SetDefault("max_versions_per_prompt", 0)
	v.SetDefault("connection_idle_timeout_seconds", 300)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("storage.file.dir", "./prompts")
	v.SetDefault("storage.file.watch", true)

	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.ssl_mode", "require")
	v.SetDefault("storage.postgres.schema", "public")
	v.SetDefault("storage.postgres.max_conns", 25)
	v.SetDefault("storage.postgres.min_conns", 2)
	v.SetDefault("storage.postgres.max_idle_time_seconds", 300)
	v.SetDefault("storage.postgres.max_lifetime_seconds", 3600)
	v.SetDefault("storage.postgres.health_check_interval_seconds", 30)
	v.SetDefault("storage.postgres.auto_migrate", true)

	v.SetDefault("storage.sqlite.path", "./promptd.db")
	v.SetDefault("storage.sqlite.encryption_key", "")
	v.SetDefault("storage.mysql.dsn", "")

	v.SetDefault("registry.cache_ttl_seconds", 300)
	v.SetDefault("registry.compaction_schedule", "")
	v.SetDefault("registry.search_enabled", true)

	v.SetDefault("events.backend", "local")
	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.channel", "promptd:changes")

	v.SetDefault("session.queue_size", 64)
	v.SetDefault("session.render_retry_attempts", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.file", "")
}

// Load reads configuration into a Config. When cfgFile is empty,
// promptd.yaml is searched in PROMPTD_HOME, the working directory and
// /etc/promptd. A missing file is not an error. A .env file in the working
// directory is loaded into the environment first.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(HomeDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/promptd/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrapf(err, "error reading config file %s", v.ConfigFileUsed())
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Newf("config: %s: invalid value %v (%s %s)", fe.Namespace(), fe.Value(), fe.Tag(), fe.Param())
		}
		return errors.Wrap(err, "config")
	}

	switch c.StorageBackend {
	case BackendFile:
		if c.Storage.File.Dir == "" {
			return errors.New("config: storage.file.dir is required for the file backend")
		}
	case BackendPostgres:
		pg := c.Storage.Postgres
		if pg.DSN == "" && (pg.Host == "" || pg.Database == "") {
			return errors.New("config: storage.postgres requires dsn or host and database")
		}
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("config: storage.sqlite.path is required for the sqlite backend")
		}
	case BackendMySQL:
		if c.Storage.MySQL.DSN == "" {
			return errors.New("config: storage.mysql.dsn is required for the mysql backend")
		}
	}

	if c.Events.Backend == "redis" && c.Events.RedisURL == "" {
		return errors.New("config: events.redis_url is required for the redis event bus")
	}

	if c.Registry.CompactionSchedule != "" {
		if _, err := cron.ParseStandard(c.Registry.CompactionSchedule); err != nil {
			return errors.Wrapf(err, "config: registry.compaction_schedule %q", c.Registry.CompactionSchedule)
		}
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrapf(err, "config: logging.level")
	}
	return nil
}
