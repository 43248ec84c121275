package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"dossier/pkg/platform/strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Audit    AuditConfig    `yaml:"audit"`
	Upload   UploadConfig   `yaml:"upload"`
	Seed     SeedConfig     `yaml:"seed"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"DOSSIER_ADDR"             env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"DOSSIER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"DOSSIER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"DOSSIER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"DOSSIER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// StorageConfig selects where profiles, activity entries and the role
// selection live.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"DOSSIER_STORAGE" env-default:"memory"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"           env:"REDIS_URL"           env-default:"redis://localhost:6379/0"`
	PoolSize     int           `yaml:"pool_size"     env:"REDIS_POOL_SIZE"     env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout"  env:"REDIS_DIAL_TIMEOUT"  env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"  env:"REDIS_READ_TIMEOUT"  env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	Migrate         bool          `yaml:"migrate"            env:"DATABASE_MIGRATE"            env-default:"true"`
}

// KafkaConfig enables the activity stream sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic"   env:"KAFKA_AUDIT_TOPIC" env-default:"dossier.activity"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// AuditConfig tunes the activity publisher. BufferSize 0 writes the store
// inside the command, so /audit reads its own writes; a positive size moves
// store and sink writes to a background worker.
type AuditConfig struct {
	BufferSize  int           `yaml:"buffer_size"  env:"AUDIT_BUFFER_SIZE"  env-default:"0"`
	SinkTimeout time.Duration `yaml:"sink_timeout" env:"AUDIT_SINK_TIMEOUT" env-default:"2s"`
}

type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"           env:"UPLOAD_MAX_BYTES"     env-default:"5242880"`
	AllowedMediaTypes []string `yaml:"allowed_media_types" env:"UPLOAD_MEDIA_TYPES"   env-separator:"," env-default:"application/pdf,image/jpeg,image/png"`
}

type SeedConfig struct {
	Enabled bool `yaml:"enabled" env:"DOSSIER_SEED" env-default:"false"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults. The file path comes from CONFIG_PATH and
// falls back to ./config.yaml; a missing default file is not an error.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints and normalizes list values.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{BackendMemory, BackendRedis, BackendPostgres}, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of memory, redis, postgres; got %q", c.Storage.Backend))
	}
	if c.Storage.Backend == BackendPostgres && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for the postgres backend"))
	}
	if c.Storage.Backend == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for the redis backend"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text; got %q", c.Log.Format))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}

	c.Upload.AllowedMediaTypes = strings.DedupeAndTrimLower(c.Upload.AllowedMediaTypes)
	if len(c.Upload.AllowedMediaTypes) == 0 {
		errs = append(errs, errors.New("upload.allowed_media_types must not be empty"))
	}
	if c.Audit.BufferSize < 0 {
		errs = append(errs, errors.New("audit.buffer_size must not be negative"))
	}
	if c.Audit.SinkTimeout <= 0 {
		errs = append(errs, errors.New("audit.sink_timeout must be positive"))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}

	return errors.Join(errs...)
}
