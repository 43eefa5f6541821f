// Package main is the entry point for the Schemes API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/engine"
	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/internal/server"
	"github.com/celerix-dev/schemes/internal/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting Schemes API",
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Store.Backend),
		zap.String("base_path", cfg.Server.BasePath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := engine.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	srv := server.New(cfg.Server, server.NewRouter(cfg, store))

	if cfg.Server.TLS == config.TLSSelfSigned {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("generate tls certificate: %w", err)
		}
		srv.SetCertificate(cert)
		logger.Info("TLS enabled with a self-signed certificate")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		logger.Info("Shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if serveErr == nil {
		logger.Info("Shutting down server...")
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}

	// Flushes pending snapshot writes for the memory backend.
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error("Closing store failed", zap.Error(err))
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("Server stopped gracefully")
	return nil
}
