package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"mediagen/internal/bootstrap"
	"mediagen/internal/http/handlers"
	httpapi "mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to wire services")
	}
	defer c.Close()

	app := &handlers.App{
		Logger:  logger,
		Submit:  c.Submit,
		Status:  c.Status,
		Webhook: c.Webhook,
		Assets:  c.Assets,
		Direct:  c.Direct(),
		Ping:    c.Ping,
	}
	if c.Worker != nil {
		app.Worker = c.Worker
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, httpapi.OptionsFromConfig(cfg)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Bool("direct", app.Direct).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.TriggerMode == infra.TriggerModeHTTP || cfg.ConsumesQueue() {
		if sweeper := c.Sweeper(); sweeper != nil {
			g.Go(func() error { return sweeper.Run(gctx) })
		}
	}
	if cfg.ConsumesQueue() {
		if consumer := c.Consumer(); consumer != nil {
			g.Go(func() error { return consumer.Run(gctx) })
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: failed to shutdown server")
		}
		if err := app.Drain(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api: worker invocations still running at exit")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: stopped with error")
	}
	logger.Info().Msg("api: stopped")
}
