package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/mysql-redis-adapter/internal/auth"
	"github.com/edvin/mysql-redis-adapter/internal/classify"
	"github.com/edvin/mysql-redis-adapter/internal/config"
	"github.com/edvin/mysql-redis-adapter/internal/executor"
	"github.com/edvin/mysql-redis-adapter/internal/logging"
	"github.com/edvin/mysql-redis-adapter/internal/metrics"
	"github.com/edvin/mysql-redis-adapter/internal/ratelimit"
	"github.com/edvin/mysql-redis-adapter/internal/store"
	"github.com/edvin/mysql-redis-adapter/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("metrics_listen_addr", cfg.MetricsListenAddr).
		Int("scan_limit", cfg.ScanLimit).
		Int("rate_limit", cfg.RateLimit).
		Dur("rate_window", cfg.RateWindow).
		Bool("allow_scan", cfg.AllowScan).
		Msg("configuration_loaded")

	redisStore, err := store.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct redis store")
	}
	defer redisStore.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := redisStore.Ping(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to reach redis backing store")
	}

	verifier := auth.New(redisStore, logger)
	limiter := ratelimit.New(redisStore, cfg.RateLimit, cfg.RateWindow, logger)
	classifier := classify.New(cfg.AllowScan)
	exec := executor.New(redisStore, verifier, cfg.ScanLimit, wire.ServerVersion, logger)
	srv := wire.NewServer(classifier, exec, limiter, logger)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind listener")
	}

	metricsServer := metrics.NewServer(cfg.MetricsListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("accepting mysql connections")
		if err := srv.Serve(gctx, ln); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("mysql listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("serving metrics")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()
	ln.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown completed with errors")
	}
}
