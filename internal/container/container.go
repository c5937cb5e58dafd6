package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/dispatcher"
	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/application/service"
	"github.com/sust-cse/approval-engine/internal/infrastructure/messaging"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/sust-cse/approval-engine/internal/infrastructure/worker"
	httpapi "github.com/sust-cse/approval-engine/internal/interfaces/http"
	"github.com/sust-cse/approval-engine/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Adapters
	signatures *SignatureBundle
	cache      *CacheBundle
	relay      *messaging.Relay

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Instance port.InstanceRepository
	Trail    port.TrailRepository
	Sequence port.SequenceRepository
	Identity port.IdentityRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Submission   service.SubmissionService
	Decision     service.DecisionService
	Verification service.VerificationService
	Checks       service.CheckService
	Queries      service.QueryService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Signature store and verification cache
// 3. Event dispatcher and relay
// 4. Application services
// 5. Event consumers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize adapters
	if err := c.initAdapters(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize adapters: %w", err)
	}
	c.logger.Info("Adapters initialized")

	// Step 3: Initialize dispatcher and relay
	events, err := ProvideEvents(&c.config.Events, c.logger)
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize events: %w", err)
	}
	c.dispatcher = events.Dispatcher
	c.relay = events.Relay
	c.logger.Info("Dispatcher initialized", zap.String("backend", c.config.Events.Backend))

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 5: Start event consumers
	c.workers = ProvideWorkers(events, c.logger)
	if err := c.workers.StartAll(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.WorkerCount()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized; callers hold c.mu.
func (c *Container) teardown() []error {
	var errs []error

	// Drain async handlers before the relay's publisher goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.relay != nil {
		if err := c.relay.Close(); err != nil {
			c.logger.Error("Failed to close event relay", zap.Error(err))
			errs = append(errs, fmt.Errorf("close relay: %w", err))
		}
		c.relay = nil
	}

	if c.cache != nil && c.cache.Close != nil {
		if err := c.cache.Close(); err != nil {
			c.logger.Error("Failed to close cache", zap.Error(err))
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	c.cache = nil

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.db = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	for name, check := range c.healthChecks() {
		if err := check(ctx); err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			continue
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}
	return status
}

func (c *Container) healthChecks() map[string]httpapi.HealthCheck {
	db := c.db
	checks := map[string]httpapi.HealthCheck{
		"database": func(ctx context.Context) error {
			if db == nil {
				return fmt.Errorf("not initialized")
			}
			return db.PingContext(ctx)
		},
	}
	if c.cache != nil && c.cache.Ping != nil {
		checks["cache"] = c.cache.Ping
	}
	if workers := c.workers; workers != nil && workers.WorkerCount() > 0 {
		checks["workers"] = func(context.Context) error {
			if !workers.IsRunning() {
				return fmt.Errorf("not running")
			}
			return nil
		}
	}
	return checks
}

// Services returns the application services.
func (c *Container) Services() *ServiceBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services
}

// HTTPServices returns the services and health checks the HTTP API needs.
func (c *Container) HTTPServices() httpapi.Services {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return httpapi.Services{
		Submission:   c.services.Submission,
		Decision:     c.services.Decision,
		Verification: c.services.Verification,
		Checks:       c.services.Checks,
		Queries:      c.services.Queries,
		HealthChecks: c.healthChecks(),
	}
}

// HTTPServerConfig returns the HTTP server configuration, serving local signatures when configured.
func (c *Container) HTTPServerConfig() httpapi.ServerConfig {
	cfg := httpapi.DefaultServerConfig()
	cfg.Host = c.config.Server.Host
	cfg.Port = c.config.Server.Port
	cfg.ReadTimeout = c.config.Server.ReadTimeout
	cfg.WriteTimeout = c.config.Server.WriteTimeout

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signatures != nil && c.signatures.LocalDir != "" {
		cfg.SignatureDir = c.signatures.LocalDir
		if c.config.Signatures.BaseURL != "" && c.config.Signatures.BaseURL[0] == '/' {
			cfg.SignaturePath = c.config.Signatures.BaseURL
		}
	}
	return cfg
}

// Repositories returns the repository bundle.
func (c *Container) Repositories() *RepositoryBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repositories
}

// SignatureStore returns the configured signature store; nil when signatures are disabled.
func (c *Container) SignatureStore() SignatureStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signatures == nil {
		return nil
	}
	return c.signatures.Store
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dispatcher
}

// initDatabase opens the database and creates the repositories.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = dbBundle.DB
	c.txManager = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		c.teardown()
		return err
	}

	c.repositories = repos
	return nil
}

// initAdapters creates the signature store and verification cache.
func (c *Container) initAdapters(ctx context.Context) error {
	signatures, err := ProvideSignatureStore(ctx, &c.config.Signatures, c.logger)
	if err != nil {
		return err
	}
	c.signatures = signatures

	cacheBundle, err := ProvideCache(ctx, &c.config.Cache, c.logger)
	if err != nil {
		return err
	}
	c.cache = cacheBundle
	return nil
}

// initServices creates all application services.
func (c *Container) initServices() error {
	var signatures port.SignatureStore
	if c.signatures.Store != nil {
		signatures = c.signatures.Store
	}

	services, err := ProvideServices(&ServiceDeps{
		Repos:        c.repositories,
		TxManager:    c.txManager,
		Signatures:   signatures,
		Cache:        c.cache.Cache,
		Dispatcher:   c.dispatcher,
		Verification: c.config.Verification,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}
