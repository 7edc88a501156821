package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is where Load looks when no config file is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Correlation CorrelationConfig `koanf:"correlation"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type DatabaseConfig struct {
	URL               string        `koanf:"url"`
	MaxConns          int32         `koanf:"max_conns"`
	MinConns          int32         `koanf:"min_conns"`
	MaxConnLifetime   time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
}

type RedisConfig struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	TimelineTTL time.Duration `koanf:"timeline_ttl"`
	InsightTTL  time.Duration `koanf:"insight_ttl"`
}

type PipelineConfig struct {
	Workers   int           `koanf:"workers"`
	LogWindow time.Duration `koanf:"log_window"`
}

type CorrelationConfig struct {
	SessionGap   time.Duration `koanf:"session_gap"`
	TopLimit     int           `koanf:"top_limit"`
	TrailingDays int           `koanf:"trailing_days"`
}

type TelemetryConfig struct {
	ServiceName    string `koanf:"service_name"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Database: DatabaseConfig{
			MaxConns:          25,
			MinConns:          5,
			MaxConnLifetime:   5 * time.Minute,
			MaxConnIdleTime:   time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		Redis: RedisConfig{
			TimelineTTL: 5 * time.Minute,
			InsightTTL:  time.Minute,
		},
		Pipeline: PipelineConfig{
			Workers:   4,
			LogWindow: 7 * 24 * time.Hour,
		},
		Correlation: CorrelationConfig{
			SessionGap:   30 * time.Minute,
			TopLimit:     10,
			TrailingDays: 30,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "scenario-audit-backend",
			MetricsEnabled: true,
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// Load builds the configuration in three layers: compiled defaults, then
// the YAML file at path (missing files are fine), then CS_ environment
// variables. Env keys use double underscore between sections so keys
// that themselves contain underscores survive: CS_SERVER__PORT is
// server.port, CS_CORRELATION__SESSION_GAP is correlation.session_gap.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("CS_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "CS_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
