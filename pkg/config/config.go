package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gymledger/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Reports       ReportsConfig       `yaml:"reports"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

// RedisConfig holds Redis settings; an empty URL disables Redis
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// CacheConfig holds plan cache settings
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	L1Size  int           `yaml:"l1_size"`
	L1TTL   time.Duration `yaml:"l1_ttl"`
	L2TTL   time.Duration `yaml:"l2_ttl"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// RateLimitConfig holds per-owner request limits (Redis backed)
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

// ReportsConfig holds dashboard aggregation and archive settings
type ReportsConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// Dashboard snapshot archive (S3 or compatible)
	ArchiveEnabled bool   `yaml:"archive_enabled"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	ReconcileCron  string `yaml:"reconcile_cron"`
	ArchiveCron    string `yaml:"archive_cron"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevelName string                 `yaml:"log_level"`
	LogLevel     observability.LogLevel `yaml:"-"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			URL:         "postgres://localhost:5432/gymledger?sslmode=disable",
			MaxConns:    20,
			MinConns:    5,
			Timeout:     10 * time.Second,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		Cache: CacheConfig{
			Enabled: true,
			L1Size:  1024,
			L1TTL:   10 * time.Minute,
			L2TTL:   time.Hour,
		},
		Auth: AuthConfig{
			Issuer:   "gymledger",
			TokenTTL: 12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerWindow: 600,
			Window:            time.Minute,
		},
		Reports: ReportsConfig{
			Timeout:       10 * time.Second,
			S3Region:      "us-east-1",
			ReconcileCron: "0 * * * *",
			ArchiveCron:   "30 0 1 * *",
		},
		Observability: ObservabilityConfig{
			LogLevelName:       "info",
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "gymledger",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by GYM_CONFIG_FILE (if any), then GYM_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GYM_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Observability.LogLevel = observability.ParseLogLevel(strings.ToLower(cfg.Observability.LogLevelName))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("GYM_HOST", s.Host)
	s.Port = getEnv("GYM_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("GYM_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("GYM_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("GYM_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("GYM_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("GYM_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.CORSOrigins = getEnvList("GYM_CORS_ORIGINS", s.CORSOrigins)
	s.HealthPort = getEnv("GYM_HEALTH_PORT", s.HealthPort)

	d := &c.Database
	d.URL = getEnv("GYM_POSTGRES_URL", d.URL)
	d.ReplicaURLs = getEnvList("GYM_POSTGRES_REPLICA_URLS", d.ReplicaURLs)
	d.MaxConns = getEnvInt("GYM_POSTGRES_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("GYM_POSTGRES_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("GYM_POSTGRES_TIMEOUT", d.Timeout)
	d.AutoMigrate = getEnvBool("GYM_POSTGRES_AUTO_MIGRATE", d.AutoMigrate)

	r := &c.Redis
	r.URL = getEnv("GYM_REDIS_URL", r.URL)
	r.Password = getEnv("GYM_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("GYM_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("GYM_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("GYM_REDIS_POOL_SIZE", r.PoolSize)

	ca := &c.Cache
	ca.Enabled = getEnvBool("GYM_CACHE_ENABLED", ca.Enabled)
	ca.L1Size = getEnvInt("GYM_L1_CACHE_SIZE", ca.L1Size)
	ca.L1TTL = getEnvDuration("GYM_L1_CACHE_TTL", ca.L1TTL)
	ca.L2TTL = getEnvDuration("GYM_L2_CACHE_TTL", ca.L2TTL)

	a := &c.Auth
	a.JWTSecret = getEnv("GYM_JWT_SECRET", a.JWTSecret)
	a.Issuer = getEnv("GYM_JWT_ISSUER", a.Issuer)
	a.TokenTTL = getEnvDuration("GYM_JWT_TTL", a.TokenTTL)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("GYM_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.RequestsPerWindow = getEnvInt("GYM_RATE_LIMIT_REQUESTS", rl.RequestsPerWindow)
	rl.Window = getEnvDuration("GYM_RATE_LIMIT_WINDOW", rl.Window)

	rp := &c.Reports
	rp.Timeout = getEnvDuration("GYM_REPORT_TIMEOUT", rp.Timeout)
	rp.ArchiveEnabled = getEnvBool("GYM_ARCHIVE_ENABLED", rp.ArchiveEnabled)
	rp.S3Endpoint = getEnv("GYM_S3_ENDPOINT", rp.S3Endpoint)
	rp.S3Region = getEnv("GYM_S3_REGION", rp.S3Region)
	rp.S3Bucket = getEnv("GYM_S3_BUCKET", rp.S3Bucket)
	rp.S3AccessKey = getEnv("GYM_S3_ACCESS_KEY", rp.S3AccessKey)
	rp.S3SecretKey = getEnv("GYM_S3_SECRET_KEY", rp.S3SecretKey)
	rp.S3UsePathStyle = getEnvBool("GYM_S3_USE_PATH_STYLE", rp.S3UsePathStyle)
	rp.ReconcileCron = getEnv("GYM_RECONCILE_CRON", rp.ReconcileCron)
	rp.ArchiveCron = getEnv("GYM_ARCHIVE_CRON", rp.ArchiveCron)

	o := &c.Observability
	o.LogLevelName = getEnv("GYM_LOG_LEVEL", o.LogLevelName)
	o.MetricsEnabled = getEnvBool("GYM_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("GYM_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("GYM_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("GYM_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("GYM_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("GYM_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("GYM_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("postgres max conns must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required (GYM_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 bytes")
	}

	if c.Cache.Enabled && c.Cache.L1Size <= 0 {
		return fmt.Errorf("L1 cache size must be positive when the cache is enabled")
	}

	if c.RateLimit.Enabled {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required when rate limiting is enabled")
		}
		if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
	}

	if c.Reports.Timeout <= 0 {
		return fmt.Errorf("report timeout must be positive")
	}
	if c.Reports.ArchiveEnabled && c.Reports.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when dashboard archiving is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
