// cmd/quoted/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/sonic-defi/internal/api"
	"github.com/rovshanmuradov/sonic-defi/internal/app"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml/json/toml)")
	listen := flag.String("listen", "", "Override api.listen")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	appLogger, err := logger.New(&cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()
	appLogger.Info("Starting quote service",
		zap.String("network", cfg.Network.Name),
		zap.Uint64("chain_id", cfg.Network.ChainID))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	core, err := app.New(rootCtx, cfg, app.Options{Registerer: reg, Logger: appLogger.Logger})
	if err != nil {
		appLogger.Fatal("Failed to assemble core", zap.Error(err))
	}

	server := api.NewServer(cfg.API, core.APIDeps(reg))

	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutting down quote service")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("HTTP shutdown failed", zap.Error(err))
		}
		return core.Close(ctx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Quote service stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Quote service stopped")
}
