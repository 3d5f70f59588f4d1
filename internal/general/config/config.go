package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides; nesting uses "__", e.g. LOGISTICS_RABBITMQ__URL.
const EnvPrefix = "LOGISTICS_"

type Config struct {
	Database DatabaseConfig `koanf:"database"`
	RabbitMQ RabbitMQConfig `koanf:"rabbitmq"`
	Redis    RedisConfig    `koanf:"redis"`
	Peer     PeerConfig     `koanf:"peer"`
	Services ServicesConfig `koanf:"services"`
	Log      LogConfig      `koanf:"log"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"database"`
}

type RabbitMQConfig struct {
	URL      string `koanf:"url"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	VHost    string `koanf:"vhost"`

	ReconnectBackoff     time.Duration `koanf:"reconnect_backoff"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"` // 0 = unbounded
	Prefetch             int           `koanf:"prefetch"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	DedupTTL time.Duration `koanf:"dedup_ttl"`
}

type PeerConfig struct {
	UserDriverURL string        `koanf:"user_driver_url"`
	Timeout       time.Duration `koanf:"timeout"`
}

type ServicesConfig struct {
	FleetPort    int `koanf:"fleet_port"`
	MatchingPort int `koanf:"matching_port"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// AMQPURL returns the broker endpoint: the explicit url, or one assembled from host
// and credentials. Empty when neither is configured.
func (c RabbitMQConfig) AMQPURL() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	if strings.TrimSpace(c.Host) == "" {
		return ""
	}
	port := c.Port
	if port == 0 {
		port = 5672
	}
	u := &url.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + strings.TrimPrefix(c.VHost, "/"),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// LoadFromFile loads config from a YAML file, overlays LOGISTICS_* environment
// variables, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	k := koanf.New(".")

	if strings.TrimSpace(path) != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields. The broker endpoint has no
// default: an unconfigured broker must fail at connect time.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.ReconnectBackoff == 0 {
		cfg.RabbitMQ.ReconnectBackoff = 5 * time.Second
	}
	if cfg.RabbitMQ.Prefetch == 0 {
		cfg.RabbitMQ.Prefetch = 10
	}

	// Redis
	if cfg.Redis.DedupTTL == 0 {
		cfg.Redis.DedupTTL = 24 * time.Hour
	}

	// Peer
	if cfg.Peer.UserDriverURL == "" {
		cfg.Peer.UserDriverURL = "http://localhost:3001"
	}
	if cfg.Peer.Timeout == 0 {
		cfg.Peer.Timeout = 3 * time.Second
	}

	// Services
	if cfg.Services.FleetPort == 0 {
		cfg.Services.FleetPort = 3003
	}
	if cfg.Services.MatchingPort == 0 {
		cfg.Services.MatchingPort = 3004
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port < 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 0..65535")
	}
	if c.RabbitMQ.ReconnectBackoff < 0 {
		problems = append(problems, "rabbitmq.reconnect_backoff must not be negative")
	}
	if c.RabbitMQ.MaxReconnectAttempts < 0 {
		problems = append(problems, "rabbitmq.max_reconnect_attempts must not be negative")
	}
	if c.RabbitMQ.Prefetch < 0 {
		problems = append(problems, "rabbitmq.prefetch must not be negative")
	}

	// Redis
	if c.Redis.DB < 0 {
		problems = append(problems, "redis.db must not be negative")
	}

	// Peer
	if _, err := url.ParseRequestURI(c.Peer.UserDriverURL); err != nil {
		problems = append(problems, "peer.user_driver_url must be an absolute URL")
	}

	// Services
	if c.Services.FleetPort <= 0 || c.Services.FleetPort > 65535 {
		problems = append(problems, "services.fleet_port must be in 1..65535")
	}
	if c.Services.MatchingPort <= 0 || c.Services.MatchingPort > 65535 {
		problems = append(problems, "services.matching_port must be in 1..65535")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
