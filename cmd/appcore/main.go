/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// The appcore binary runs the execution core as a standalone server: the
// HTTP API (E4), the run manager's drain loop (C7), and the OTel/Prometheus
// ambient stack, wired against Postgres (C6 run store), embedded SQLite
// (C5 cache, E3 OAuth token store), and an optional Milvus/bleve knowledge
// backend (E2).
//
// Grounded on the teacher's cmd/control-plane/main.go: zap production
// logger, signal.NotifyContext for SIGINT/SIGTERM, and a graceful
// http.Server.Shutdown on exit.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/appcore/internal/blocks"
	"github.com/marcus-qen/appcore/internal/cache"
	"github.com/marcus-qen/appcore/internal/config"
	"github.com/marcus-qen/appcore/internal/httpapi"
	"github.com/marcus-qen/appcore/internal/knowledge"
	"github.com/marcus-qen/appcore/internal/mcp"
	"github.com/marcus-qen/appcore/internal/oauthbroker"
	"github.com/marcus-qen/appcore/internal/provider"
	"github.com/marcus-qen/appcore/internal/retry"
	"github.com/marcus-qen/appcore/internal/runmanager"
	"github.com/marcus-qen/appcore/internal/runstore"
	"github.com/marcus-qen/appcore/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := loadConfig(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, cfg.OTelEndpoint, version)
	if err != nil {
		logger.Fatal("init trace provider", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	store, err := runstore.Open(ctx, cfg.RunStoreDSN)
	if err != nil {
		logger.Fatal("open run store", zap.Error(err))
	}
	defer store.Close()

	deps, knowledgeSvc, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build block dependencies", zap.Error(err))
	}

	registry := blocks.New()

	server := httpapi.NewServer(store, nil, registry, deps, logger)
	server.Knowledge = knowledgeSvc
	manager := runmanager.New(server.NewWorker(), nil, logger)
	server.Manager = manager
	manager.Start(ctx)
	defer manager.Stop(context.Background())

	srv := httpapi.NewHTTPServer(cfg.ListenAddr, server.Routes())

	logger.Info("starting appcore",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", version),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func loadConfig(logger *zap.Logger) config.Config {
	path := os.Getenv("APPCORE_CONFIG_FILE")
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	return cfg
}

// buildDeps wires the cache, knowledge, and OAuth broker collaborators plus
// the provider registry, from cfg and process environment variables holding
// provider API keys (APPCORE_ANTHROPIC_API_KEY, APPCORE_OPENAI_API_KEY). It
// returns the concrete knowledge.Service alongside Deps so main can expose
// it on httpapi.Server for the ingestion/table-registration routes, which
// need more than the narrow blocks.Knowledge interface Deps carries.
func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*blocks.Deps, *knowledge.Service, error) {
	cacheStore, err := cache.Open(cfg.CacheDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	oauthKey, err := oauthSealingKey(cfg.OAuthSealingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth sealing key: %w", err)
	}
	oauthStore, err := oauthbroker.OpenSQLiteStore(cfg.OAuthDBPath, oauthKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open oauth store: %w", err)
	}
	oauthBroker := oauthbroker.New(oauthStore, map[string]oauthbroker.TokenRefresher{})

	registry := provider.Registry{}
	if key := os.Getenv("APPCORE_ANTHROPIC_API_KEY"); key != "" {
		p, err := provider.NewAnthropicProvider(provider.ProviderConfig{Type: "anthropic", APIKey: key})
		if err != nil {
			return nil, nil, fmt.Errorf("init anthropic provider: %w", err)
		}
		registry["anthropic"] = p
	}
	if key := os.Getenv("APPCORE_OPENAI_API_KEY"); key != "" {
		p, err := provider.NewOpenAIProvider(provider.ProviderConfig{Type: "openai", APIKey: key})
		if err != nil {
			return nil, nil, fmt.Errorf("init openai provider: %w", err)
		}
		registry["openai"] = p
	}
	if len(registry) == 0 {
		logger.Warn("no provider API keys configured; llm/chat blocks will fail until APPCORE_ANTHROPIC_API_KEY or APPCORE_OPENAI_API_KEY is set")
	}

	knowledgeSvc, err := buildKnowledge(ctx, cfg, registry, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build knowledge service: %w", err)
	}

	return &blocks.Deps{
		Providers: registry,
		Cache:     cacheStore,
		Knowledge: knowledgeSvc,
		OAuth:     oauthBroker,
		MCP:       mcp.NewBridge(),
		Retries:   retry.Default(),
	}, knowledgeSvc, nil
}

// buildKnowledge opens the node index used by `search` blocks and, when an
// OpenAI provider is configured (the only provider in this stack with a
// native embeddings endpoint), an ingestion pipeline backed by it. The
// vector store is optional: when cfg.VectorStoreAddr is unreachable at
// startup, ingestion still populates the bleve node index (full-text
// search keeps working; nearest-neighbor search over the vector store
// doesn't). Table stores for datasource_query are registered afterward, via
// POST /v1/projects/{project}/knowledge/tables.
func buildKnowledge(ctx context.Context, cfg config.Config, registry provider.Registry, logger *zap.Logger) (*knowledge.Service, error) {
	nodes, err := knowledge.OpenNodeIndex(cfg.NodeIndexPath)
	if err != nil {
		return nil, fmt.Errorf("open node index: %w", err)
	}
	svc := knowledge.NewService(nodes, map[string]*knowledge.TableStore{})

	embedder, ok := registry["openai"].(provider.Embedder)
	if !ok {
		logger.Warn("no embedding-capable provider configured; document ingestion disabled until APPCORE_OPENAI_API_KEY is set")
		return svc, nil
	}

	var vectors *knowledge.VectorStore
	if cfg.VectorStoreAddr != "" {
		vectors, err = knowledge.NewVectorStore(ctx, cfg.VectorStoreAddr, "appcore_chunks", openAIEmbeddingDim)
		if err != nil {
			logger.Warn("vector store unavailable, ingestion will only populate the node index", zap.Error(err))
			vectors = nil
		}
	}

	svc.SetIngestor(knowledge.NewIngestor(provider.ByteTokenizer{}, provider.ByteTokenizer{}, embedder, 512, vectors, nodes))
	return svc, nil
}

// openAIEmbeddingDim is the vector width of OpenAI's text-embedding-3-small,
// the default EmbedRequest.Model when a block leaves it unset.
const openAIEmbeddingDim = 1536

func oauthSealingKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return key, nil
	}
	return hex.DecodeString(hexKey)
}
