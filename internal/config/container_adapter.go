package config

import (
	"github.com/sust-cse/approval-engine/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			AutoMigrate:     true,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Verification: container.VerificationConfig{
			ApplicationPrefix: c.Verification.ApplicationPrefix,
			CostRequestPrefix: c.Verification.CostRequestPrefix,
		},
		Signatures: container.SignaturesConfig{
			Backend:    c.Signatures.Backend,
			Dir:        c.Signatures.Dir,
			BaseURL:    c.Signatures.BaseURL,
			Endpoint:   c.Signatures.Endpoint,
			AccessKey:  c.Signatures.AccessKey,
			SecretKey:  c.Signatures.SecretKey,
			Bucket:     c.Signatures.Bucket,
			Region:     c.Signatures.Region,
			UseSSL:     c.Signatures.UseSSL,
			Prefix:     c.Signatures.Prefix,
			PresignTTL: c.Signatures.PresignTTL,
		},
		Cache: container.CacheConfig{
			Backend:  c.Cache.Backend,
			Addr:     c.Cache.Addr,
			Password: c.Cache.Password,
			DB:       c.Cache.DB,
			TTL:      c.Cache.TTL,
		},
		Events: container.EventsConfig{
			Backend:  c.Events.Backend,
			Brokers:  c.Events.Brokers,
			Topic:    c.Events.Topic,
			ClientID: c.Events.ClientID,
		},
	}
}
