package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/borisletic/lti-qa-tool/internal/config"
	"github.com/borisletic/lti-qa-tool/internal/engine"
	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/ollama"
	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/qa"
	"github.com/borisletic/lti-qa-tool/internal/retrieval"
	"github.com/borisletic/lti-qa-tool/internal/storage"
)

// app holds the long-lived components shared by serve, mcp and local ingest.
type app struct {
	cfg      config.Config
	backend  engine.Engine
	store    *storage.Store
	graph    *provenance.Graph
	registry *qa.Registry
	metrics  *metrics.Metrics
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func newBackend(cfg config.Config) engine.Engine {
	var opts []ollama.Option
	if cfg.Ollama.MaxRPS > 0 {
		opts = append(opts, ollama.WithRateLimit(cfg.Ollama.MaxRPS, 1))
	}
	return engine.NewOllamaEngine(cfg.Ollama.BaseURL, opts...)
}

func qaConfig(cfg config.Config) qa.Config {
	return qa.Config{
		GenerateModel:   cfg.Ollama.GenerateModel,
		GenerateTimeout: cfg.Ollama.TimeoutDuration(),
		SegmentSize:     cfg.Segment.Size,
		SegmentOverlap:  cfg.Segment.Overlap,
		TopK:            cfg.Retrieval.TopK,
		Language:        cfg.Answer.Language,
		Cache: qa.CachePolicy{
			Threshold:          cfg.Cache.Threshold,
			InvalidateOnChange: cfg.Cache.InvalidateOnChange,
		},
	}
}

// openApp opens storage, replays the provenance graph and builds the course
// registry. m may be nil.
func openApp(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	graph, err := provenance.Open(ctx, provenance.NewStoreLog(store),
		provenance.WithLanguage(cfg.Answer.Language),
		provenance.WithKeywordPolicy(cfg.Cache.MaxKeywords, cfg.Cache.MinKeywordLen),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading provenance graph: %w", err)
	}
	m.TrackGraphSize(graph.Len)

	backend := newBackend(cfg)
	embedder := retrieval.NewEmbedder(backend, cfg.Ollama.EmbedModel)
	registry := qa.NewRegistry(backend, embedder, graph, m,
		qa.SQLiteCollections(cfg.Storage.DataDir), qaConfig(cfg))

	slog.Info("provenance graph loaded", "triples", graph.Len())
	return &app{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		graph:    graph,
		registry: registry,
		metrics:  m,
	}, nil
}

func (a *app) uploadDir() string {
	return filepath.Join(a.cfg.Storage.DataDir, "uploads")
}

func (a *app) Close() error {
	return errors.Join(a.registry.Close(), a.store.Close())
}
