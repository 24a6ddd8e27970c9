package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-article/pkg/simplearticle/admin"
	"github.com/tendant/simple-article/pkg/simplearticle/api"
	"github.com/tendant/simple-article/pkg/simplearticle/config"
)

func newLogger(environment string) *slog.Logger {
	if environment == "development" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func main() {
	// Missing .env is fine; real deployments use the environment directly.
	_ = godotenv.Load()

	serverConfig, err := config.Load(config.WithEnv(os.Getenv("SIMPLE_ARTICLE_ENV_PREFIX")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load server configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(serverConfig.Environment)
	slog.SetDefault(logger)

	if err := run(serverConfig, logger); err != nil {
		logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(serverConfig *config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := serverConfig.BuildComponents(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer components.Close()

	adminSvc := admin.New(components.Repository,
		admin.WithTeaserLength(serverConfig.TeaserLength),
		admin.WithLogger(logger),
	)

	router := api.NewRouter(
		api.NewArticleHandler(components.Service, logger),
		api.NewRedirectHandler(components.Service, adminSvc, logger),
		api.NewPublicHandler(components.Service, logger),
		logger,
	)
	if components.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(components.Registry, promhttp.HandlerOpts{}))
	}

	httpServer := &http.Server{
		Addr:              ":" + serverConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("simple article server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"redirect_cache", components.Cache != nil,
			"metrics", components.Registry != nil,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exiting")
	return nil
}
