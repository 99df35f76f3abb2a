package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/api"
	"github.com/clinical-kg-server/internal/cache"
	"github.com/clinical-kg-server/internal/config"
	"github.com/clinical-kg-server/internal/database"
	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/graph"
	"github.com/clinical-kg-server/internal/observability"
	"github.com/clinical-kg-server/internal/ontology"
	"github.com/clinical-kg-server/internal/repository"
	"github.com/clinical-kg-server/internal/service"
)

var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	configManager, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configManager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(1)
	}
	cfg := configManager.GetConfig()

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.ServiceInfo{
		Name:        "clinical-kg-server",
		Version:     version,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Tracer shutdown failed")
		}
	}()

	dbConfig := database.ConfigFrom(cfg.Database)
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, dbConfig.URL(), cfg.Database.MigrationsPath, logger); err != nil {
			return err
		}
	}

	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := repository.NewResilientFactStore(
		repository.NewClinicalRepository(db.Pool, logger),
		cfg.CircuitBreaker,
		logger,
	)

	o, err := ontology.Load(cfg.Graph.OntologyFile)
	if err != nil {
		return err
	}
	builder := graph.NewBuilder(store, o, graph.OptionsFrom(cfg.Graph), logger)

	checks := map[string]api.HealthCheck{"database": db.Health}

	graphCache, closeCache, err := buildCache(cfg.Cache, logger, checks)
	if err != nil {
		return err
	}
	defer closeCache()

	graphs := service.NewKnowledgeGraphService(builder, graphCache, cfg.Cache.DefaultTTL, logger)

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"version": version,
	}).Info("Starting clinical knowledge graph server")

	return api.NewServer(cfg, graphs, checks, version, logger).Start(ctx)
}

// buildCache returns the in-memory cache, fronting redis when a URL is set.
// A nil cache disables caching.
func buildCache(cfg domain.CacheConfig, logger *logrus.Logger, checks map[string]api.HealthCheck) (domain.GraphCache, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	memory, err := cache.NewMemoryCache(cfg.MemoryMaxItems, cfg.MemoryTTL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisURL == "" {
		return memory, func() {}, nil
	}

	redisCache, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		// The API stays up on the near cache alone.
		logger.WithError(err).Warn("Redis unavailable, using in-memory cache only")
		return memory, func() {}, nil
	}
	checks["redis"] = redisCache.Ping

	closeFn := func() {
		if err := redisCache.Close(); err != nil {
			logger.WithError(err).Warn("Closing redis client failed")
		}
	}
	return cache.NewTieredCache(memory, redisCache, logger), closeFn, nil
}
