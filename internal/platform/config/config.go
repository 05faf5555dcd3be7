package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
	liststr "auditd/pkg/platform/strings"
)

// EnvPrefix is stripped from environment variables before they are mapped to
// config paths. A double underscore separates sections:
// AUDITD_SINKS__KAFKA__BROKERS -> sinks.kafka.brokers.
const EnvPrefix = "AUDITD_"

// PathEnvVar overrides the config file location.
const PathEnvVar = "AUDITD_CONFIG"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"auditd.yaml",
	"auditd.yml",
	"/etc/auditd/auditd.yaml",
}

// Config is the complete service configuration.
type Config struct {
	Server    Server    `koanf:"server"`
	Logging   Logging   `koanf:"logging"`
	Publisher Publisher `koanf:"publisher"`
	Filter    Filter    `koanf:"filter"`
	Redis     Redis     `koanf:"redis"`
	Postgres  Postgres  `koanf:"postgres"`
	Sinks     Sinks     `koanf:"sinks"`
	Breaker   Breaker   `koanf:"breaker"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// JWTSigningKey signs admin bearer tokens (HS256).
	JWTSigningKey string `koanf:"jwt_signing_key" validate:"required,min=16"`
	// Realm is recorded on config events emitted by the admin API.
	Realm string `koanf:"realm" validate:"required"`
}

type Logging struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

type Publisher struct {
	HandlerTimeout time.Duration `koanf:"handler_timeout" validate:"gte=0"`
	// AsyncBuffer enables per-handler queues of this size. Zero keeps delivery synchronous.
	AsyncBuffer    int           `koanf:"async_buffer" validate:"gte=0"`
	EnqueueTimeout time.Duration `koanf:"enqueue_timeout" validate:"gte=0"`
	ErrorBuffer    int           `koanf:"error_buffer" validate:"gte=0"`
}

type Filter struct {
	Source          string        `koanf:"source" validate:"oneof=static redis postgres"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`
	RedisKey        string        `koanf:"redis_key"`
	// Enabled lists "<realm>|<topic>" pairs audited by the static source, and
	// seeds the redis and postgres sources when they are empty.
	Enabled []string `koanf:"enabled"`
}

type Redis struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size" validate:"gte=0"`
	MinIdleConns int           `koanf:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type Postgres struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// Sinks selects which handlers are registered. Topics restricts a sink to the
// named topics; empty means every topic.
type Sinks struct {
	Memory      MemorySink      `koanf:"memory"`
	File        FileSink        `koanf:"file"`
	Postgres    PostgresSink    `koanf:"postgres"`
	Kafka       KafkaSink       `koanf:"kafka"`
	RedisStream RedisStreamSink `koanf:"redis_stream"`
	NATS        NATSSink        `koanf:"nats"`
}

type MemorySink struct {
	Enabled bool     `koanf:"enabled"`
	Limit   int      `koanf:"limit" validate:"gte=0"`
	Topics  []string `koanf:"topics"`
}

type FileSink struct {
	Enabled bool     `koanf:"enabled"`
	Path    string   `koanf:"path" validate:"required_if=Enabled true"`
	Topics  []string `koanf:"topics"`
}

type PostgresSink struct {
	Enabled bool     `koanf:"enabled"`
	Migrate bool     `koanf:"migrate"`
	Topics  []string `koanf:"topics"`
}

type KafkaSink struct {
	Enabled    bool     `koanf:"enabled"`
	Brokers    []string `koanf:"brokers" validate:"required_if=Enabled true"`
	Topic      string   `koanf:"topic" validate:"required_if=Enabled true"`
	Partitions int32    `koanf:"partitions" validate:"gte=0"`
	Replicas   int16    `koanf:"replicas" validate:"gte=0"`
	Topics     []string `koanf:"topics"`
}

type RedisStreamSink struct {
	Enabled bool     `koanf:"enabled"`
	Stream  string   `koanf:"stream" validate:"required_if=Enabled true"`
	MaxLen  int64    `koanf:"max_len" validate:"gte=0"`
	Topics  []string `koanf:"topics"`
}

type NATSSink struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url" validate:"required_if=Enabled true"`
	Subject       string        `koanf:"subject" validate:"required_if=Enabled true"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	TrackMsgID    bool          `koanf:"track_msg_id"`
	Topics        []string      `koanf:"topics"`
}

// Breaker wraps every network sink in a circuit breaker when enabled.
type Breaker struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
}

func defaults() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Realm:           "/",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Publisher: Publisher{
			HandlerTimeout: 5 * time.Second,
			EnqueueTimeout: 100 * time.Millisecond,
			ErrorBuffer:    64,
		},
		Filter: Filter{
			Source:          "static",
			RefreshInterval: 30 * time.Second,
			RedisKey:        filter.DefaultRedisKey,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: Postgres{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Sinks: Sinks{
			Memory:      MemorySink{Enabled: true, Limit: 1000},
			Postgres:    PostgresSink{Migrate: true},
			Kafka:       KafkaSink{Topic: "audit.events", Partitions: 3, Replicas: 1},
			RedisStream: RedisStreamSink{Stream: "audit:events", MaxLen: 100_000},
			NATS:        NATSSink{Subject: "audit.events", MaxReconnects: -1, ReconnectWait: 2 * time.Second, TrackMsgID: true},
		},
		Breaker: Breaker{FailureThreshold: 5, Cooldown: 30 * time.Second},
	}
}

// sliceKeys are split on commas when they arrive as a single env string.
var sliceKeys = []string{
	"filter.enabled",
	"sinks.memory.topics",
	"sinks.file.topics",
	"sinks.postgres.topics",
	"sinks.kafka.brokers",
	"sinks.kafka.topics",
	"sinks.redis_stream.topics",
	"sinks.nats.topics",
}

// Load layers defaults, the YAML file at path (or the first of DefaultPaths
// found) and AUDITD_ environment variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}
	if err := splitSlices(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	if c.Filter.Source == "redis" && c.Redis.URL == "" {
		errs = append(errs, errors.New("filter.source redis requires redis.url"))
	}
	if c.Filter.Source == "postgres" && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("filter.source postgres requires postgres.dsn"))
	}
	if c.Sinks.Postgres.Enabled && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("sinks.postgres requires postgres.dsn"))
	}
	if c.Sinks.RedisStream.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("sinks.redis_stream requires redis.url"))
	}
	if _, err := c.Filter.Decisions(); err != nil {
		errs = append(errs, err)
	}
	for name, topics := range map[string][]string{
		"memory":       c.Sinks.Memory.Topics,
		"file":         c.Sinks.File.Topics,
		"postgres":     c.Sinks.Postgres.Topics,
		"kafka":        c.Sinks.Kafka.Topics,
		"redis_stream": c.Sinks.RedisStream.Topics,
		"nats":         c.Sinks.NATS.Topics,
	} {
		if _, err := ParseTopics(topics); err != nil {
			errs = append(errs, fmt.Errorf("sinks.%s.topics: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Decisions parses Enabled into filter decisions.
func (f Filter) Decisions() (map[filter.Key]bool, error) {
	decisions := make(map[filter.Key]bool, len(f.Enabled))
	for _, raw := range f.Enabled {
		key, err := filter.ParseKey(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("filter.enabled: %w", err)
		}
		decisions[key] = true
	}
	return decisions, nil
}

// ParseTopics converts topic names, returning every topic for an empty list.
func ParseTopics(names []string) ([]audit.Topic, error) {
	names = liststr.DedupeAndTrim(names)
	if len(names) == 0 {
		return audit.Topics(), nil
	}
	topics := make([]audit.Topic, 0, len(names))
	for _, n := range names {
		t := audit.Topic(n)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown topic %q", n)
		}
		topics = append(topics, t)
	}
	return topics, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps AUDITD_SINKS__KAFKA__BROKERS to sinks.kafka.brokers.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func splitSlices(k *koanf.Koanf) error {
	for _, path := range sliceKeys {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		if err := k.Set(path, liststr.SplitList(s)); err != nil {
			return fmt.Errorf("split config %s: %w", path, err)
		}
	}
	return nil
}
