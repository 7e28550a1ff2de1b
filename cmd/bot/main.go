package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tippay/tip_bot/internal/bot"
	"github.com/tippay/tip_bot/internal/config"
	"github.com/tippay/tip_bot/internal/infra"
	"github.com/tippay/tip_bot/internal/logging"
	"github.com/tippay/tip_bot/internal/metrics"
	"github.com/tippay/tip_bot/internal/routes"
	"github.com/tippay/tip_bot/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppEnv)

	ctx := context.Background()

	// Backends are dialed only when the configuration asks for them. Redis is
	// also dialed for the rate limiter when a URL is present without being the
	// credential store.
	var (
		db     *pgxpool.Pool
		cache  *redis.Client
		dynamo *dynamodb.Client
	)

	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	if cfg.StoreBackend == config.StorePostgres {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, int32(cfg.MaxConcurrency))
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	if cfg.StoreBackend == config.StoreDynamo {
		dynamo, err = infra.NewDynamoClient(ctx)
		if err != nil {
			logger.Error("configure dynamodb", "error", err)
			os.Exit(1)
		}
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.EnableMetrics {
		recorder = metrics.NewPrometheusRecorder()
	}

	runner := bot.NewRunner(cfg.MaxConcurrency, cfg.ExecTimeout, logger)

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Dynamo:   dynamo,
		Runner:   runner,
		Logger:   logger,
		Recorder: recorder,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	logger.Info("bot listening",
		"addr", cfg.Address(),
		"env", cfg.AppEnv,
		"store", cfg.StoreBackend,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	// In-flight payments get the rest of the shutdown budget to finish.
	if err := runner.Drain(shutdownCtx); err != nil {
		logger.Warn("deferred jobs still running at exit", "error", err)
	}

	logger.Info("server exited cleanly")
}
