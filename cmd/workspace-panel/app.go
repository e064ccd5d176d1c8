package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/aggregator"
	"github.com/devrev/workspace-panel/internal/config"
	"github.com/devrev/workspace-panel/internal/health"
	"github.com/devrev/workspace-panel/internal/logging"
	"github.com/devrev/workspace-panel/internal/metrics"
	"github.com/devrev/workspace-panel/internal/provisioning"
	"github.com/devrev/workspace-panel/internal/service"
	"github.com/devrev/workspace-panel/internal/store"
	"github.com/devrev/workspace-panel/internal/tenantdb"
)

// app holds every long-lived dependency, built once at startup and torn
// down explicitly on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store  *store.PostgresWorkspaceStore
	cache  store.Cache
	pool   *tenantdb.Pool
	mirror *aggregator.Mirror

	workspaces *service.WorkspaceService
	data       *service.DataService
	deps       []health.Dependency

	closers []func()
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, logging.New(cfg.Logging), nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)

	workspaceStore, err := store.NewPostgresWorkspaceStore(ctx, cfg.Database.URL,
		cfg.Database.MaxConnections, cfg.Database.MinConnections, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master database: %w", err)
	}
	a.store = workspaceStore
	a.closers = append(a.closers, workspaceStore.Close)
	a.deps = append(a.deps, health.Dependency{Name: "master_store", Pinger: workspaceStore})

	if err := a.buildCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	mirror := aggregator.Disabled(logger, a.metrics)
	if cfg.Aggregator.Enabled() {
		mirror, err = aggregator.New(ctx, aggregator.Config{
			URL:      strings.TrimSpace(cfg.Aggregator.URL),
			MaxConns: int32(cfg.Aggregator.MaxConnections),
		}, logger, a.metrics)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure aggregator: %w", err)
		}
	}
	a.mirror = mirror
	a.closers = append(a.closers, mirror.Close)
	if cfg.Aggregator.Enabled() {
		a.deps = append(a.deps, health.Dependency{Name: "aggregator", Pinger: mirror, Optional: true})
	}

	a.pool = tenantdb.NewPool(tenantdb.GormDialer(tenantdb.DialConfig{
		MaxOpenConns:    cfg.WorkspaceDB.MaxOpenConns,
		MaxIdleConns:    cfg.WorkspaceDB.MaxIdleConns,
		ConnMaxLifetime: cfg.WorkspaceDB.ConnMaxLifetime,
	}), logger, a.metrics)
	a.closers = append(a.closers, func() {
		if err := a.pool.CloseAll(); err != nil {
			logger.Warn("failed to close workspace database clients", zap.Error(err))
		}
	})

	neon := provisioning.NewNeonClient(provisioning.Config{
		BaseURL:      cfg.Neon.BaseURL,
		APIKey:       cfg.Neon.APIKey,
		OrgID:        cfg.Neon.OrgID,
		Timeout:      cfg.Neon.Timeout,
		MaxAttempts:  cfg.Neon.MaxAttempts,
		RetryBackoff: cfg.Neon.RetryBackoff,
		DatabaseName: cfg.Neon.DatabaseName,
		RoleName:     cfg.Neon.RoleName,
	}, logger, a.metrics)

	initializer := tenantdb.NewSchemaInitializer(logger)
	introspector := tenantdb.NewIntrospector()

	a.workspaces = service.NewWorkspaceService(workspaceStore, a.cache, cfg.Cache.WorkspaceTTL,
		neon, initializer, introspector, mirror, a.metrics, logger)
	a.workspaces.SetReleaseTimeout(cfg.Neon.Timeout)
	a.data = service.NewDataService(a.workspaces, a.pool, initializer, introspector, mirror, logger)

	logger.Info("application initialized",
		zap.Bool("aggregator_enabled", cfg.Aggregator.Enabled()),
		zap.String("cache_backend", cfg.Cache.Backend),
	)
	return a, nil
}

func (a *app) buildCache(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case "redis":
		redisCache, err := store.NewRedisCache(ctx, a.cfg.Redis.URL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cache = redisCache
		a.deps = append(a.deps, health.Dependency{Name: "redis", Pinger: redisCache})
		a.closers = append(a.closers, func() {
			if err := redisCache.Close(); err != nil {
				a.logger.Warn("failed to close redis client", zap.Error(err))
			}
		})
	case "none":
		a.cache = store.NoopCache{}
	default:
		memoryCache := store.NewInMemoryCache(a.cfg.Cache.MaxSize, a.logger)
		a.cache = memoryCache
		a.closers = append(a.closers, memoryCache.Close)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
