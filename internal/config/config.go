package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. APPROVAL_SERVER_PORT
const EnvPrefix = "APPROVAL"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Verification VerificationConfig `mapstructure:"verification"`
	Signatures   SignaturesConfig   `mapstructure:"signatures"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Events       EventsConfig       `mapstructure:"events"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// VerificationConfig holds the verification code prefixes per workflow type
type VerificationConfig struct {
	ApplicationPrefix string `mapstructure:"application_prefix"`
	CostRequestPrefix string `mapstructure:"cost_request_prefix"`
}

// SignaturesConfig selects where reviewer signature images live
type SignaturesConfig struct {
	Backend    string        `mapstructure:"backend"`
	Dir        string        `mapstructure:"dir"`
	BaseURL    string        `mapstructure:"base_url"`
	Endpoint   string        `mapstructure:"endpoint"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	Bucket     string        `mapstructure:"bucket"`
	Region     string        `mapstructure:"region"`
	UseSSL     bool          `mapstructure:"use_ssl"`
	Prefix     string        `mapstructure:"prefix"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

// CacheConfig configures the public verification view cache
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EventsConfig configures the domain event relay
type EventsConfig struct {
	Backend  string   `mapstructure:"backend"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads configuration from an optional YAML file, a .env file and environment variables
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding the real environment
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("verification.application_prefix", "APP")
	v.SetDefault("verification.cost_request_prefix", "COST")

	v.SetDefault("signatures.backend", "local")
	v.SetDefault("signatures.dir", "data/signatures")
	v.SetDefault("signatures.base_url", "/signatures")
	v.SetDefault("signatures.endpoint", "")
	v.SetDefault("signatures.bucket", "signatures")
	v.SetDefault("signatures.region", "")
	v.SetDefault("signatures.use_ssl", false)
	v.SetDefault("signatures.prefix", "")
	v.SetDefault("signatures.presign_ttl", 24*time.Hour)

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("events.backend", "gochannel")
	v.SetDefault("events.topic", "approval.events")
	v.SetDefault("events.client_id", "approval-engine")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "approval-engine")
}

// bindEnvVars binds secrets to their conventional unprefixed variables as well.
// Comma-separated values decode into slices.
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"signatures.access_key": {"APPROVAL_SIGNATURES_ACCESS_KEY", "MINIO_ACCESS_KEY"},
		"signatures.secret_key": {"APPROVAL_SIGNATURES_SECRET_KEY", "MINIO_SECRET_KEY"},
		"cache.password":        {"APPROVAL_CACHE_PASSWORD", "REDIS_PASSWORD"},
		"events.brokers":        {"APPROVAL_EVENTS_BROKERS", "KAFKA_BROKERS"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Verification.ApplicationPrefix == "" || c.Verification.CostRequestPrefix == "" {
		return fmt.Errorf("verification prefixes are required")
	}
	if c.Verification.ApplicationPrefix == c.Verification.CostRequestPrefix {
		return fmt.Errorf("verification prefixes must differ")
	}
	for _, prefix := range []string{c.Verification.ApplicationPrefix, c.Verification.CostRequestPrefix} {
		if !validPrefix(prefix) {
			return fmt.Errorf("verification prefix %q must be upper-case letters and digits starting with a letter", prefix)
		}
	}

	switch c.Signatures.Backend {
	case "none":
	case "local":
		if c.Signatures.Dir == "" {
			return fmt.Errorf("signatures.dir is required for the local backend")
		}
	case "minio":
		if c.Signatures.Endpoint == "" || c.Signatures.Bucket == "" {
			return fmt.Errorf("signatures.endpoint and signatures.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("signatures.backend must be none, local or minio")
	}

	switch c.Cache.Backend {
	case "none":
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis backend")
		}
		// Cached views embed presigned URLs, which must outlive the entry
		if c.Signatures.Backend == "minio" && c.Cache.TTL >= c.Signatures.PresignTTL {
			return fmt.Errorf("cache.ttl must be shorter than signatures.presign_ttl")
		}
	default:
		return fmt.Errorf("cache.backend must be none or redis")
	}

	switch c.Events.Backend {
	case "gochannel":
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("events.brokers is required for the kafka backend")
		}
	default:
		return fmt.Errorf("events.backend must be gochannel or kafka")
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("events.topic is required")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	return nil
}

func validPrefix(prefix string) bool {
	for i, r := range prefix {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return prefix != ""
}
