// Package container provides dependency injection and lifecycle management
// for the approval engine.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Verification VerificationConfig
	Signatures   SignaturesConfig
	Cache        CacheConfig
	Events       EventsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration

	// AutoMigrate applies embedded migrations on start
	AutoMigrate bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// VerificationConfig holds verification code prefixes.
type VerificationConfig struct {
	ApplicationPrefix string
	CostRequestPrefix string
}

// SignaturesConfig selects the signature store.
type SignaturesConfig struct {
	// Backend is one of none, local or minio
	Backend string

	// Local backend
	Dir     string
	BaseURL string

	// MinIO backend
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	Prefix     string
	PresignTTL time.Duration
}

// CacheConfig selects the verification view cache.
type CacheConfig struct {
	// Backend is one of none or redis
	Backend  string
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// EventsConfig configures the watermill relay.
type EventsConfig struct {
	// Backend is one of gochannel or kafka
	Backend  string
	Brokers  []string
	Topic    string
	ClientID string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approvals.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			AutoMigrate:     true,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Verification: VerificationConfig{
			ApplicationPrefix: "APP",
			CostRequestPrefix: "COST",
		},
		Signatures: SignaturesConfig{
			Backend:    "local",
			Dir:        "data/signatures",
			BaseURL:    "/signatures",
			PresignTTL: 24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend: "none",
			TTL:     time.Hour,
		},
		Events: EventsConfig{
			Backend:  "gochannel",
			Topic:    "approval.events",
			ClientID: "approval-engine",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Verification.ApplicationPrefix == "" || c.Verification.CostRequestPrefix == "" {
		return fmt.Errorf("verification prefixes are required")
	}

	switch c.Signatures.Backend {
	case "none", "local", "minio":
	default:
		return fmt.Errorf("unknown signatures backend %q", c.Signatures.Backend)
	}
	switch c.Cache.Backend {
	case "none", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Events.Backend {
	case "gochannel", "kafka":
	default:
		return fmt.Errorf("unknown events backend %q", c.Events.Backend)
	}

	return nil
}
