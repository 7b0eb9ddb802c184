package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/ai"
	"github.com/xxxsen/ctxkit/internal/artifact"
	"github.com/xxxsen/ctxkit/internal/composer"
	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/db"
	"github.com/xxxsen/ctxkit/internal/embedcache"
	"github.com/xxxsen/ctxkit/internal/filestore"
	"github.com/xxxsen/ctxkit/internal/index"
	"github.com/xxxsen/ctxkit/internal/oracle"
	"github.com/xxxsen/ctxkit/internal/repo"
	"github.com/xxxsen/ctxkit/internal/selector"
	"github.com/xxxsen/ctxkit/internal/service"
	"github.com/xxxsen/ctxkit/internal/tokenizer"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	cacheRepo *repo.EmbeddingCacheRepo
	artifacts *artifact.Store
	index     *service.IndexService
	contexts  *service.ContextService
	packs     *service.PackService
	schemas   *service.SchemaService
}

func loadConfig(path, dataDir string) (*config.Config, error) {
	if path == "" {
		return config.Default(dataDir)
	}
	return config.Load(path)
}

// initLogger sets up the global logger. Console output is suppressed when
// stdout carries a protocol, as with the MCP stdio server.
func initLogger(cfg *config.Config, console bool) {
	lc := cfg.LogConfig
	logger.Init(
		lc.File,
		lc.Level,
		int(lc.FileCount),
		int(lc.FileSize),
		int(lc.KeepDays),
		lc.Console && console,
	)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{cfg: cfg, db: conn}
	if err := a.wire(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	docs := repo.NewDocumentRepo(a.db)
	packRepo := repo.NewPackRepo(a.db)
	snapshots := repo.NewSchemaSnapshotRepo(a.db)
	a.cacheRepo = repo.NewEmbeddingCacheRepo(a.db)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	a.artifacts = artifact.NewStore(files, repo.NewArtifactRepo(a.db))

	wraps := []func(ai.IEmbedder) ai.IEmbedder{
		func(e ai.IEmbedder) ai.IEmbedder {
			return embedcache.WrapLRU(e, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSeconds)*time.Second)
		},
	}
	if cfg.EmbedCache.DB {
		wraps = append(wraps, func(e ai.IEmbedder) ai.IEmbedder {
			return embedcache.WrapDB(e, a.cacheRepo)
		})
	}
	manager, err := ai.Build(cfg.AI, wraps...)
	if err != nil {
		return err
	}

	idx := index.New(cfg.Index.Dir, manager,
		index.WithBatchSize(cfg.Index.BatchSize),
		index.WithWorkers(cfg.Index.Workers),
	)
	if err := idx.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	var ranker oracle.Oracle
	if manager.HasRanker() {
		ranker = oracle.NewLLM(manager, time.Duration(cfg.AI.Timeout)*time.Second)
	}
	var generator ai.IGenerator
	if manager.HasRanker() {
		generator = ai.WithTimeout(manager, time.Duration(cfg.AI.Timeout)*time.Second)
	}

	est := tokenizer.New(cfg.Compose.TokenEstimator)
	sel := selector.New(ranker, packRepo, a.artifacts, selector.ConfigFrom(cfg.Compose))
	comp := composer.New(packRepo, a.artifacts, est, snapshots, composer.ConfigFrom(cfg.Compose))

	a.index = service.NewIndexService(docs, idx)
	a.contexts = service.NewContextService(idx, docs, sel, comp, cfg.Compose)
	a.packs = service.NewPackService(docs, packRepo, a.artifacts, est, generator)
	a.schemas = service.NewSchemaService(snapshots, docs)

	logutil.GetLogger(ctx).Debug("app wired",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("embedder", manager.ModelName()),
		zap.Bool("oracle", ranker != nil),
		zap.String("token_estimator", cfg.Compose.TokenEstimator))
	return nil
}

func (a *app) Close() error {
	return a.db.Close()
}
