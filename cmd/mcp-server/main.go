package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/cache"
	"github.com/clinical-kg-server/internal/config"
	"github.com/clinical-kg-server/internal/database"
	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/graph"
	"github.com/clinical-kg-server/internal/mcp"
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

	// stdout belongs to the stdio transport.
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}
	logger.Info("Clinical knowledge graph MCP server stopped")
}

func run(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.ServiceInfo{
		Name:        "clinical-kg-mcp-server",
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

	sqlStore, err := repository.OpenPostgresFactStore(dbConfig.DSN(), cfg.Database.MaxOpenConns, logger)
	if err != nil {
		return err
	}
	defer sqlStore.Close()

	store := repository.NewResilientFactStore(sqlStore, cfg.CircuitBreaker, logger)

	o, err := ontology.Load(cfg.Graph.OntologyFile)
	if err != nil {
		return err
	}
	builder := graph.NewBuilder(store, o, graph.OptionsFrom(cfg.Graph), logger)

	var graphCache domain.GraphCache
	if cfg.Cache.Enabled {
		memory, err := cache.NewMemoryCache(cfg.Cache.MemoryMaxItems, cfg.Cache.MemoryTTL)
		if err != nil {
			return err
		}
		graphCache = memory
	}

	graphs := service.NewKnowledgeGraphService(builder, graphCache, cfg.Cache.MemoryTTL, logger)

	mcpConfig := cfg.MCP
	if mcpConfig.ServerVersion == "" {
		mcpConfig.ServerVersion = version
	}
	return mcp.NewServer(mcpConfig, graphs, logger).Start(ctx)
}
