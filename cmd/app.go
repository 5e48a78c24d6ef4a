package cmd

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/api"
	"github.com/conocermx/renec-harvester/internal/clock/system"
	"github.com/conocermx/renec-harvester/internal/config"
	"github.com/conocermx/renec-harvester/internal/drivers"
	"github.com/conocermx/renec-harvester/internal/fetch"
	"github.com/conocermx/renec-harvester/internal/fingerprint"
	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/id/uuid"
	kvmemory "github.com/conocermx/renec-harvester/internal/kvstore/memory"
	"github.com/conocermx/renec-harvester/internal/logging"
	publishpubsub "github.com/conocermx/renec-harvester/internal/publish/pubsub"
	"github.com/conocermx/renec-harvester/internal/render"
	"github.com/conocermx/renec-harvester/internal/resilience"
	"github.com/conocermx/renec-harvester/internal/scheduler"
	sinkmemory "github.com/conocermx/renec-harvester/internal/sink/memory"
	"github.com/conocermx/renec-harvester/internal/sink/postgres"
	snapgcs "github.com/conocermx/renec-harvester/internal/snapshot/gcs"
	snaplocal "github.com/conocermx/renec-harvester/internal/snapshot/local"
	snapmemory "github.com/conocermx/renec-harvester/internal/snapshot/memory"
)

// app wires every service the commands need from a loaded configuration.
// Close releases the long-lived resources in reverse construction order.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	scheduler *scheduler.Scheduler
	runs      *api.RunLog

	renderer     *render.Renderer
	pgStore      *postgres.Store
	gcsClient    *storage.Client
	pubsubClient *gcppubsub.Client
	publisher    *publishpubsub.Publisher
}

// newApp is a variable so tests can swap in a stub factory.
var newApp = buildApp

func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		runs:   api.NewRunLog(32),
	}

	kv := kvmemory.New()
	clock := system.New()

	breaker := resilience.NewBreaker(kv, resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout(),
		HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
	}, clock, logger)

	limiter := resilience.NewRateLimiter(kv, resilience.RateConfig{
		Ceiling:    cfg.RateLimit.Ceiling,
		APICeiling: cfg.RateLimit.APICeiling,
		Window:     cfg.RateWindow(),
	}, logger)

	fetcher, err := fetch.New(fetch.Config{
		UserAgent:      cfg.Harvest.UserAgent,
		RequestTimeout: cfg.FetchTimeout(),
		MaxBodyBytes:   cfg.Harvest.MaxBodyBytes,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	guarded := resilience.NewGuardedFetcher(fetcher, breaker, limiter, logger)

	registry, err := drivers.NewDefaultRegistry(
		drivers.DefaultProfile(cfg.Site.BaseURL),
		fingerprint.New(),
		clock,
		logger,
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init drivers: %w", err)
	}

	sink, err := a.buildSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []scheduler.Option{
		scheduler.WithBreaker(breaker),
		scheduler.WithDedup(resilience.NewDedup(kv, cfg.DedupTTL(), logger)),
		scheduler.WithBlobStore(blobs),
	}

	if cfg.Render.Enabled {
		a.renderer, err = render.New(render.Config{
			UserAgent:      cfg.Harvest.UserAgent,
			MaxConcurrency: cfg.Render.MaxParallel,
			Timeout:        cfg.RenderTimeout(),
			DomainQPS:      cfg.Render.DomainQPS,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init renderer: %w", err)
		}
		opts = append(opts, scheduler.WithRenderer(a.renderer))
	}

	if cfg.PubSub.Enabled {
		a.pubsubClient, err = gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		a.publisher = publishpubsub.New(a.pubsubClient)
		opts = append(opts, scheduler.WithPublisher(a.publisher))
	}

	a.scheduler, err = scheduler.New(scheduler.Config{
		Workers:          cfg.Harvest.Workers,
		QueueDepth:       cfg.Harvest.QueueDepth,
		MaxDepth:         cfg.Harvest.MaxDepth,
		VisitedCacheSize: cfg.Harvest.VisitedCacheSize,
		SnapshotPrefix:   cfg.Harvest.SnapshotPrefix,
		Topic:            cfg.PubSub.Topic,
	}, cfg.Site.BaseURL, guarded, registry, sink, clock, uuid.New(), logger, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	return a, nil
}

func (a *app) buildSink(ctx context.Context) (harvester.Sink, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("No database configured, using in-memory sink")
		return sinkmemory.New(), nil
	}

	store, err := postgres.New(ctx, postgres.Config{
		DSN:                a.cfg.DB.DSN,
		RecordsTable:       a.cfg.DB.RecordsTable,
		RelationshipsTable: a.cfg.DB.RelationshipsTable,
		MaxConns:           a.cfg.DB.MaxConns,
		MinConns:           a.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres sink: %w", err)
	}
	a.pgStore = store
	return store, nil
}

func (a *app) buildBlobStore(ctx context.Context) (harvester.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := snapgcs.New(client, snapgcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return store, nil
	case "local":
		store, err := snaplocal.New(snaplocal.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	default:
		return snapmemory.NewBlobStore(), nil
	}
}

// Close shuts down the services that hold external resources. Safe to call
// on a partially built app.
func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("Failed to close pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("Failed to close gcs client", zap.Error(err))
		}
	}
	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			a.logger.Warn("Failed to close renderer", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
