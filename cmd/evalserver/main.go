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

	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/adapter/agentclient"
	"github.com/domusnext/eval/internal/adapter/blob"
	"github.com/domusnext/eval/internal/config"
	"github.com/domusnext/eval/internal/feed"
	"github.com/domusnext/eval/internal/logging"
	"github.com/domusnext/eval/internal/policy"
	store "github.com/domusnext/eval/internal/repository"
	"github.com/domusnext/eval/internal/service"
	transport "github.com/domusnext/eval/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting evaluation service",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("executor", cfg.ExecutorMode),
		zap.String("upload_dir", cfg.UploadDir))

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.RunPolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize run policy: %w", err)
	}

	bucket, err := blob.NewDirBucket(cfg.UploadDir)
	if err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := feed.NewHub(logger)
	go hub.Run(hubCtx)

	feedServer := feed.NewServer(hub, feed.Options{
		PingInterval: cfg.FeedPingInterval,
		WriteTimeout: cfg.FeedWriteTimeout,
		ReadTimeout:  cfg.FeedReadTimeout,
	}, logger)

	executor := service.NewExecutor(cfg, db, agentclient.NewClient(), hub, logger)
	svc := service.New(db, executor, policyEngine, hub, bucket, cfg, logger)

	e := transport.NewServer(svc, feedServer, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("http server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start http server: %w", err)
	}

	logger.Info("shutting down evaluation service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
	}
	if err := svc.Close(); err != nil {
		logger.Warn("failed to stop run executor", zap.Error(err))
	}
	stopHub()

	logger.Info("evaluation service stopped")
	return nil
}
