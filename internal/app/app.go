// Package app initializes and holds the long-lived services shared by the
// flightnet commands.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/clock/system"
	"github.com/mossishahi/flightnet/internal/config"
	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/hash/sha256"
	"github.com/mossishahi/flightnet/internal/id/uuid"
	"github.com/mossishahi/flightnet/internal/logging"
	"github.com/mossishahi/flightnet/internal/metrics"
	"github.com/mossishahi/flightnet/internal/policy/throttle"
	gcppublisher "github.com/mossishahi/flightnet/internal/publisher/pubsub"
	gcsstorage "github.com/mossishahi/flightnet/internal/storage/gcs"
	localstorage "github.com/mossishahi/flightnet/internal/storage/local"
	memorystorage "github.com/mossishahi/flightnet/internal/storage/memory"
	pgstore "github.com/mossishahi/flightnet/internal/storage/postgres"
)

// App holds the shared services of a flightnet process. Build wires them
// from configuration; commands pick what they need.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger
	Store  flight.Store
	// Blobs is nil when raw payload archiving is disabled.
	Blobs flight.BlobStore
	// Publisher is nil when no pub/sub topic is configured.
	Publisher flight.Publisher
	Gate      *throttle.Gate
	Hasher    flight.Hasher
	IDs       flight.IDGenerator
	Clock     flight.Clock

	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	pub          *gcppublisher.Publisher
}

// Build creates the application's services. It replaces the global zap
// logger and registers the Prometheus collectors as side effects.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Gate:   throttle.New(cfg.Throttle.MinInterval()),
		Hasher: sha256.New(),
		IDs:    uuid.New(),
		Clock:  system.New(),
	}
	logger.Info("building application services",
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("archive_provider", cfg.Archive.Provider),
		zap.Int("server_port", cfg.Server.Port),
	)

	if err := setupStore(ctx, a); err != nil {
		return nil, err
	}
	if err := setupArchive(ctx, a); err != nil {
		return nil, err
	}
	if err := setupPublisher(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func setupStore(ctx context.Context, a *App) error {
	switch a.Cfg.DB.Provider {
	case "postgres":
		store, err := pgstore.NewFlightStore(ctx, pgstore.Config{
			DSN:      a.Cfg.DB.DSN,
			MaxConns: a.Cfg.DB.MaxConns,
			MinConns: a.Cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("flight store init failed: %w", err)
		}
		a.Store = store
		a.Logger.Info("using postgres flight store")
	case "memory", "":
		a.Store = memorystorage.NewFlightStore()
		a.Logger.Info("using in-memory flight store, rows vanish at exit")
	default:
		return fmt.Errorf("unknown db provider: %s", a.Cfg.DB.Provider)
	}
	if err := a.Store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func setupArchive(ctx context.Context, a *App) error {
	switch a.Cfg.Archive.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.Cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.Blobs = blobs
		a.Logger.Info("archiving raw payloads to gcs", zap.String("bucket", a.Cfg.Archive.Bucket))
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.Cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.Blobs = blobs
		a.Logger.Info("archiving raw payloads locally", zap.String("base_dir", a.Cfg.Archive.BaseDir))
	case "memory":
		a.Blobs = memorystorage.NewBlobStore()
		a.Logger.Info("archiving raw payloads in memory")
	case "":
		a.Logger.Info("raw payload archiving disabled")
	default:
		return fmt.Errorf("unknown archive provider: %s", a.Cfg.Archive.Provider)
	}
	return nil
}

func setupPublisher(ctx context.Context, a *App) error {
	if a.Cfg.PubSub.ProjectID == "" || a.Cfg.PubSub.Topic == "" {
		a.Logger.Info("no pub/sub topic configured, run summaries stay local")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.Cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	pub, err := gcppublisher.New(client)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pub = pub
	a.Publisher = pub
	a.Logger.Info("pub/sub publisher initialized",
		zap.String("project", a.Cfg.PubSub.ProjectID),
		zap.String("topic", a.Cfg.PubSub.Topic),
	)
	return nil
}

// Close shuts the services down in reverse dependency order. Best effort:
// failures are logged, not returned.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	if a.pub != nil {
		a.pub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if err := a.Logger.Sync(); err != nil {
		a.Logger.Warn("logger sync failed", zap.Error(err))
	}
}
