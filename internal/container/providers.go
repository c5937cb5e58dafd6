package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/dispatcher"
	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/application/schema"
	"github.com/sust-cse/approval-engine/internal/application/service"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/internal/infrastructure/cache"
	"github.com/sust-cse/approval-engine/internal/infrastructure/messaging"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/sust-cse/approval-engine/internal/infrastructure/storage"
	"github.com/sust-cse/approval-engine/internal/infrastructure/worker"
	"github.com/sust-cse/approval-engine/migrations"
	"github.com/sust-cse/approval-engine/pkg/database"
	"github.com/sust-cse/approval-engine/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// SignatureStore is a signature store that can also provision signatures
type SignatureStore interface {
	port.SignatureStore
	Save(ctx context.Context, identityID string, content []byte) (string, error)
}

// SignatureBundle holds the configured signature store.
type SignatureBundle struct {
	Store SignatureStore
	// LocalDir is set when signatures are served from a local directory
	LocalDir string
}

// CacheBundle holds the verification cache and its health check.
type CacheBundle struct {
	Cache port.VerificationCache
	Ping  func(ctx context.Context) error
	Close func() error
}

// EventBundle holds the dispatcher and the watermill relay it feeds.
type EventBundle struct {
	Dispatcher dispatcher.Dispatcher
	Relay      *messaging.Relay
	Subscriber message.Subscriber
	Topic      string
}

// ServiceDeps groups the dependencies of the application services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	TxManager    port.TransactionManager
	Signatures   port.SignatureStore
	Cache        port.VerificationCache
	Dispatcher   port.EventDispatcher
	Verification VerificationConfig
	Logger       *zap.Logger
}

// ProvideDatabase opens the SQLite database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		applied, err := database.NewMigrator(db, logger).Run(migrations.FS)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations applied", zap.Int("count", applied))
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Instance: repository.NewInstanceRepository(sqlDB, logger),
		Trail:    repository.NewTrailRepository(sqlDB, logger),
		Sequence: repository.NewSequenceRepository(sqlDB, logger),
		Identity: repository.NewIdentityRepository(sqlDB, logger),
	}, nil
}

// ProvideSignatureStore creates the configured signature store; the none backend yields a nil store.
func ProvideSignatureStore(ctx context.Context, cfg *SignaturesConfig, logger *zap.Logger) (*SignatureBundle, error) {
	switch cfg.Backend {
	case "", "none":
		return &SignatureBundle{}, nil
	case "local":
		return &SignatureBundle{
			Store:    storage.NewLocalSignatureStore(cfg.Dir, cfg.BaseURL, logger),
			LocalDir: cfg.Dir,
		}, nil
	case "minio":
		minioCfg := storage.MinioConfig{
			Endpoint:   cfg.Endpoint,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			Bucket:     cfg.Bucket,
			Region:     cfg.Region,
			UseSSL:     cfg.UseSSL,
			Prefix:     cfg.Prefix,
			PresignTTL: cfg.PresignTTL,
		}
		client, err := storage.NewMinioClient(minioCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		store := storage.NewMinioSignatureStore(client, minioCfg, logger)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return &SignatureBundle{Store: store}, nil
	default:
		return nil, fmt.Errorf("unknown signatures backend %q", cfg.Backend)
	}
}

// ProvideCache creates the configured verification cache.
func ProvideCache(ctx context.Context, cfg *CacheConfig, logger *zap.Logger) (*CacheBundle, error) {
	switch cfg.Backend {
	case "", "none":
		return &CacheBundle{Cache: cache.NewNoopCache()}, nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, err
		}
		redisCache := cache.NewRedisCache(client, cfg.TTL, logger)
		return &CacheBundle{Cache: redisCache, Ping: redisCache.Ping, Close: redisCache.Close}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// ProvideEvents creates the dispatcher and registers the watermill relay on it.
func ProvideEvents(cfg *EventsConfig, logger *zap.Logger) (*EventBundle, error) {
	publisher, subscriber, err := messaging.NewPublisher(messaging.Config{
		Backend:  cfg.Backend,
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		ClientID: cfg.ClientID,
	}, messaging.NewLoggerAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
	relay := messaging.NewRelay(publisher, cfg.Topic, logger)
	relay.Register(disp)

	return &EventBundle{Dispatcher: disp, Relay: relay, Subscriber: subscriber, Topic: relay.Topic()}, nil
}

// ProvideWorkers registers the in-process event consumers. Backends without a
// local subscriber (kafka) get an empty manager.
func ProvideWorkers(events *EventBundle, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger)
	if events != nil && events.Subscriber != nil {
		manager.Register(worker.NewEventAuditWorker(events.Subscriber, events.Topic, logger))
	}
	return manager
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil || deps.Logger == nil {
		return nil, fmt.Errorf("repositories, transaction manager and logger are required")
	}

	schemas, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile payload schemas: %w", err)
	}

	logger := utils.NewKVLogger(deps.Logger)
	repos := deps.Repos
	prefixes := service.CodePrefixes{
		entity.WorkflowTypeApplication: deps.Verification.ApplicationPrefix,
		entity.WorkflowTypeCostRequest: deps.Verification.CostRequestPrefix,
	}

	verification := service.NewVerificationService(
		repos.Instance, repos.Trail, repos.Sequence, deps.Signatures, deps.Cache, prefixes, logger,
	)

	return &ServiceBundle{
		Submission: service.NewSubmissionService(
			repos.Instance, repos.Identity, deps.TxManager, workflow.NewStageResolver(), schemas, deps.Dispatcher, logger,
		),
		Decision: service.NewDecisionService(
			repos.Instance, repos.Trail, repos.Identity, deps.TxManager, verification, deps.Signatures, deps.Dispatcher, logger,
		),
		Verification: verification,
		Checks:       service.NewCheckService(repos.Instance, repos.Trail, repos.Identity, deps.Dispatcher, logger),
		Queries:      service.NewQueryService(repos.Instance, repos.Trail, repos.Identity),
	}, nil
}
