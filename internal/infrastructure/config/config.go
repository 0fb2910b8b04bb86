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

	"github.com/serviceline/ticket-analytics-backend/internal/domain/catalog"
	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Security  SecurityConfig  `koanf:"security"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Reporting ReportingConfig `koanf:"reporting"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// ContractPath points at the OpenAPI document; when set, incoming
	// requests are validated against it.
	ContractPath string `koanf:"contract_path"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	ReplicaURLs     []string      `koanf:"replica_urls"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type SecurityConfig struct {
	JWTSecret      string          `koanf:"jwt_secret"`
	TokenExpiry    time.Duration   `koanf:"token_expiry"`
	AllowedOrigins []string        `koanf:"allowed_origins"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

// TelemetryConfig controls OTLP export and the Prometheus scrape port
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate"`
	MetricsPort  int     `koanf:"metrics_port"`
}

// ReportingConfig is the configuration surface the analytics engine
// consumes: window zone, SLA policies, catalog classification, ranking
// size, carry-over policy, and the document cache TTL.
type ReportingConfig struct {
	TimeZone string `koanf:"timezone"`
	// SLA deadline offsets per ticket type, keyed by the canonical type
	// names (service_request, incident, change).
	SLA map[string]SLAPolicyConfig `koanf:"sla"`
	// Categories maps catalog service keys to "infrastructure" or
	// "application"; unmapped keys stay uncategorized.
	Categories       map[string]string `koanf:"categories"`
	TopN             int               `koanf:"top_n"`
	IncludeCarryOver bool              `koanf:"include_carryover"`
	CacheTTL         time.Duration     `koanf:"cache_ttl"`
}

type SLAPolicyConfig struct {
	ResponseWithin time.Duration `koanf:"response_within"`
	ResolveWithin  time.Duration `koanf:"resolve_within"`
}

// Location resolves the configured report time zone
func (r ReportingConfig) Location() (*time.Location, error) {
	if r.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(r.TimeZone)
}

// PolicySet converts the configured SLA offsets into the domain policy set
func (r ReportingConfig) PolicySet() (ticket.SLAPolicySet, error) {
	set := make(ticket.SLAPolicySet, len(r.SLA))
	for name, p := range r.SLA {
		typ, err := ticket.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("reporting.sla: %w", err)
		}
		set[typ] = ticket.SLAPolicy{
			ResponseWithin: p.ResponseWithin,
			ResolveWithin:  p.ResolveWithin,
		}
	}
	return set, nil
}

// CategoryMap converts the configured classification into domain categories
func (r ReportingConfig) CategoryMap() (map[string]catalog.Category, error) {
	m := make(map[string]catalog.Category, len(r.Categories))
	for key, raw := range r.Categories {
		cat, err := catalog.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("reporting.categories[%s]: %w", key, err)
		}
		m[key] = cat
	}
	return m, nil
}

// Validate checks the loaded configuration for values that would only
// fail later and further from their cause
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Reporting.TopN < 0 {
		return fmt.Errorf("reporting.top_n cannot be negative: %d", c.Reporting.TopN)
	}
	if c.Reporting.CacheTTL < 0 {
		return fmt.Errorf("reporting.cache_ttl cannot be negative: %s", c.Reporting.CacheTTL)
	}
	if _, err := c.Reporting.Location(); err != nil {
		return fmt.Errorf("reporting.timezone: %w", err)
	}
	if _, err := c.Reporting.PolicySet(); err != nil {
		return err
	}
	if _, err := c.Reporting.CategoryMap(); err != nil {
		return err
	}
	return nil
}

// Load builds the configuration from defaults, an optional YAML file, and
// TAB_-prefixed environment variables, in ascending precedence.
func Load() (*Config, error) {
	return LoadFromFile("configs/config.yaml")
}

// LoadFromFile is Load with an explicit config file path; the file is
// optional and silently skipped when absent.
func LoadFromFile(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
			MetricsPort:  9090,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Reporting: ReportingConfig{
			TimeZone: "Asia/Shanghai",
			SLA: map[string]SLAPolicyConfig{
				"service_request": {ResponseWithin: 4 * time.Hour, ResolveWithin: 3 * 24 * time.Hour},
				"incident":        {ResponseWithin: time.Hour, ResolveWithin: 8 * time.Hour},
				"change":          {ResolveWithin: 7 * 24 * time.Hour},
			},
			TopN:     10,
			CacheTTL: time.Hour,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("TAB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TAB_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
