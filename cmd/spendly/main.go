package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/auth"
	"spendly/internal/backend"
	"spendly/internal/cache"
	"spendly/internal/cli"
	"spendly/internal/config"
	apphttp "spendly/internal/http"
	"spendly/internal/log"
	"spendly/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load .env file", "error", err)
		os.Exit(1)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to release backend", "error", err)
		}
	}()

	var broker *services.AsyncPublisher
	if result.Events != nil {
		broker = services.NewAsyncPublisher(result.Events, cfg.EventQueueSize)
	}

	insights := services.NewInsightService(result.Store, loc)
	var invalidate services.EventPublisher
	var janitor *cache.Janitor
	if cfg.InsightCacheTTL > 0 {
		reports := cache.NewLRU[services.InsightEntry](cfg.InsightCacheSize, cfg.InsightCacheTTL)
		insights.UseCache(reports)
		invalidate = insights
		janitor = cache.NewJanitor(cfg.InsightCacheTTL, reports)
	}
	// The cache is invalidated inline; broker delivery happens off the request path.
	events := services.FanOut(invalidate, asPublisher(broker))

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	srv := apphttp.NewServer(cfg.Addr(), apphttp.Dependencies{
		Store:              result.Store,
		Expenses:           services.NewExpenseService(result.Store, events, loc),
		Stats:              services.NewStatsService(result.Store, loc),
		Insights:           insights,
		Sync:               services.NewSyncReconciler(result.Store, events, loc, cfg.SyncMaxBatch),
		Accounts:           services.NewAccountService(result.Store, tokens),
		Tokens:             tokens,
		Logger:             logger.WithComponent(log.ComponentHTTP),
		Location:           loc,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	g, gctx := errgroup.WithContext(ctx)
	if broker != nil {
		g.Go(func() error {
			broker.Run(gctx)
			return nil
		})
	}
	if janitor != nil {
		g.Go(func() error {
			janitor.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("Starting spendly server",
			"addr", cfg.Addr(),
			"backend", cfg.DataBackend,
			"timezone", loc.String(),
			"events", result.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// asPublisher avoids a typed nil inside the EventPublisher interface.
func asPublisher(p *services.AsyncPublisher) services.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
