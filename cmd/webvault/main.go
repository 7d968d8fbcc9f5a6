// Package main wires together the webvault archive service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/api"
	"github.com/webvault/webvault/internal/archiver"
	"github.com/webvault/webvault/internal/assets"
	"github.com/webvault/webvault/internal/clock/system"
	"github.com/webvault/webvault/internal/config"
	"github.com/webvault/webvault/internal/engine"
	collyfetcher "github.com/webvault/webvault/internal/fetcher/colly"
	"github.com/webvault/webvault/internal/fetcher/retry"
	"github.com/webvault/webvault/internal/hash/sha256"
	"github.com/webvault/webvault/internal/id/uuid"
	"github.com/webvault/webvault/internal/logging"
	"github.com/webvault/webvault/internal/processor"
	"github.com/webvault/webvault/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := store.OpenCatalog(cfg.Storage.CatalogDSN)
	if err != nil {
		logger.Fatal("open catalog failed", zap.Error(err))
	}
	defer func() {
		if closeErr := catalog.Close(); closeErr != nil {
			logger.Error("close catalog failed", zap.Error(closeErr))
		}
	}()

	archiveStore, err := store.New(cfg.Storage.BaseDir, catalog, logger.Named("store"))
	if err != nil {
		logger.Fatal("init archive store failed", zap.Error(err))
	}

	clock := system.New()
	hasher := sha256.New()
	idGen := uuid.New()

	fetcher := retry.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		}),
		retry.Config{
			MaxRetries:     cfg.HTTP.MaxRetries,
			InitialBackoff: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		},
		logger.Named("fetcher"),
	)

	downloader := assets.NewDownloader(fetcher, hasher, logger.Named("downloader"))
	proc := processor.New(downloader, cfg.Crawler.MaxConcurrent, logger.Named("processor"))
	eng := engine.New(fetcher, proc, hasher, clock, engine.Config{
		MaxDepth:   cfg.Crawler.MaxDepthDefault,
		MaxWorkers: cfg.Crawler.MaxConcurrent,
	}, logger.Named("engine"))

	service := archiver.New(archiveStore, eng, idGen, clock, cfg.CrawlBudget(), logger.Named("archiver"))
	apiServer := api.NewServer(service, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
