package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"mediagen/internal/bootstrap"
	"mediagen/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.TriggerMode != infra.TriggerModeRedis {
		logger.Fatal().Str("trigger_mode", cfg.TriggerMode).Msg("worker: requires TRIGGER_MODE=redis")
	}
	if cfg.StoreMode != infra.StoreModePostgres {
		logger.Fatal().Str("store_mode", cfg.StoreMode).Msg("worker: requires a shared postgres job store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to wire services")
	}
	defer c.Close()

	consumer := c.Consumer()
	if consumer == nil {
		logger.Fatal().Msg("worker: queue consumer unavailable")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	if sweeper := c.Sweeper(); sweeper != nil {
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	logger.Info().
		Str("queue", cfg.RedisQueueKey).
		Int("concurrency", cfg.WorkerConcurrency).
		Msg("worker: started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
