// Package main is the standalone MCP entry point. It needs no external
// services: facts live in SQLite under the data directory and built graphs
// in an in-memory cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/cache"
	"github.com/clinical-kg-server/internal/config"
	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/graph"
	"github.com/clinical-kg-server/internal/mcp"
	"github.com/clinical-kg-server/internal/observability"
	"github.com/clinical-kg-server/internal/ontology"
	"github.com/clinical-kg-server/internal/repository"
	"github.com/clinical-kg-server/internal/service"
)

var version = "dev"

const usage = `usage:
  mcp-server-lite                  serve MCP tools (CLINICAL_KG_TRANSPORT=stdio|http)
  mcp-server-lite import <file>    load a patient facts JSON document into the local store
`

func main() {
	_ = godotenv.Load(".env")

	cfg := config.LoadLiteConfig()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "import":
		if len(os.Args) != 3 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = runImport(ctx, cfg, os.Args[2], logger)
	case len(os.Args) > 1:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		err = serve(ctx, cfg, logger)
	}
	if err != nil {
		logger.WithError(err).Fatal("mcp-server-lite failed")
	}
}

func openStore(cfg *config.LiteConfig, logger *logrus.Logger) (*repository.SQLFactStore, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return repository.OpenSQLiteFactStore(cfg.FactsDBPath(), logger)
}

func serve(ctx context.Context, cfg *config.LiteConfig, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"data_dir":  cfg.DataDir,
	}).Info("Starting clinical knowledge graph MCP server (lite)")

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	o, err := ontology.Load(cfg.OntologyFile)
	if err != nil {
		return err
	}
	builder := graph.NewBuilder(store, o, graph.DefaultOptions(), logger)

	memory, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return err
	}
	graphs := service.NewKnowledgeGraphService(builder, memory, cfg.CacheTTL, logger)

	server := mcp.NewServer(domain.MCPConfig{
		ServerName:    "clinical-kg-server-lite",
		ServerVersion: version,
		TransportType: cfg.Transport,
		HTTPHost:      cfg.HTTPHost,
		HTTPPort:      cfg.HTTPPort,
	}, graphs, logger)
	return server.Start(ctx)
}

// importDocument is the JSON layout accepted by the import subcommand.
type importDocument struct {
	PatientID string `json:"patient_id"`
	domain.PatientFacts
}

func runImport(ctx context.Context, cfg *config.LiteConfig, path string, logger *logrus.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := decodeImport(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportFacts(ctx, doc.PatientID, &doc.PatientFacts)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"patient_id": doc.PatientID,
		"fact_count": n,
		"db_path":    cfg.FactsDBPath(),
	}).Info("Imported clinical facts")
	return nil
}

func decodeImport(r io.Reader) (*importDocument, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc importDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc.PatientID == "" {
		return nil, errors.New("patient_id is required")
	}
	return &doc, nil
}
