package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/handler"
	"github.com/xxxsen/ctxkit/internal/job"
	"github.com/xxxsen/ctxkit/internal/mcpserver"
	"github.com/xxxsen/ctxkit/internal/middleware"
	"github.com/xxxsen/ctxkit/internal/schedule"
	"github.com/xxxsen/ctxkit/internal/watcher"
)

type rootFlags struct {
	configPath string
	dataDir    string
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "ctxkit",
		Short:         "context pack index and prompt composer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", ".contextkit", "data directory used without --config")

	rootCmd.AddCommand(
		newRunCmd(flags),
		newMCPCmd(flags),
		newIndexCmd(flags),
		newFindCmd(flags),
		newAutoCmd(flags),
		newPackCmd(flags),
		newSchemaCmd(flags),
		newDriftCmd(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads config, wires the app and hands it to fn.
func withApp(flags *rootFlags, console bool, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(flags.configPath, flags.dataDir)
	if err != nil {
		return err
	}
	initLogger(cfg, console)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the HTTP server, scheduled jobs and the inbox watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, runServer)
		},
	}
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "serve context tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, false, func(ctx context.Context, a *app) error {
				return mcpserver.ServeStdio(mcpserver.Deps{Contexts: a.contexts, Schemas: a.schemas})
			})
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file_store", cfg.FileStore.Type),
	)

	scheduler := schedule.NewCronScheduler()
	if err := registerJobs(scheduler, a); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if dir := cfg.Ingest.WatchDir; dir != "" {
		w := watcher.New(dir, time.Duration(cfg.Ingest.DebounceMillis)*time.Millisecond, a.packs,
			func(ctx context.Context, imported int) {
				// the scheduled job shares the cron overlap guard
				if scheduler.Trigger(job.IndexRebuildJobName) == nil {
					return
				}
				if _, err := a.index.Rebuild(ctx); err != nil {
					logutil.GetLogger(ctx).Error("rebuild after import failed", zap.Error(err))
				}
			})
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("inbox watcher stopped", zap.Error(err))
			}
		}()
	}

	deps := handler.RouterDeps{
		Contexts:       handler.NewContextHandler(a.contexts, a.index),
		Packs:          handler.NewPackHandler(a.packs),
		Artifacts:      handler.NewArtifactHandler(a.artifacts),
		Schemas:        handler.NewSchemaHandler(a.schemas),
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.HTTP.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

func registerJobs(s schedule.Scheduler, a *app) error {
	sc := a.cfg.Schedule
	jobs := []struct {
		task schedule.Job
		spec string
	}{
		{job.NewIndexRebuildJob(a.index), sc.IndexRebuild},
		{job.NewEmbeddingCacheCleanupJob(a.cacheRepo, a.cfg.EmbedCache.MaxAgeDays), sc.CacheCleanup},
		{job.NewDriftScanJob(a.schemas), sc.DriftScan},
	}
	for _, item := range jobs {
		if err := s.AddJob(item.task, item.spec); err != nil {
			return fmt.Errorf("schedule %s: %w", item.task.Name(), err)
		}
	}
	return nil
}
