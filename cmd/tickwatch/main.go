package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tickwatch/tickwatch/internal/config"
	"github.com/tickwatch/tickwatch/internal/engine"
	"github.com/tickwatch/tickwatch/internal/feed"
	"github.com/tickwatch/tickwatch/internal/logger"
	"github.com/tickwatch/tickwatch/internal/models"
	"github.com/tickwatch/tickwatch/internal/server"
	"github.com/tickwatch/tickwatch/internal/sink"
	"github.com/tickwatch/tickwatch/internal/storage"
	"github.com/tickwatch/tickwatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	directory, err := models.NewDirectory(cfg.Watchlist)
	if err != nil {
		logger.Fatal("Failed to build instrument directory: %v", err)
	}
	logger.Info("Watching %d instruments", directory.Len())

	store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := server.NewHub()
	go hub.Run(ctx)

	sinkOpts := []sink.Option{}
	if cfg.Telegram.Enabled {
		notifier, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		sinkOpts = append(sinkOpts, sink.WithNotifier(notifier))
		logger.Info("Telegram notifications enabled")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	alertSink := sink.New(store, hub, sinkOpts...)
	go alertSink.Run(ctx)

	dialer, err := feed.NewDialer(cfg.Feed)
	if err != nil {
		logger.Fatal("Failed to build feed dialer: %v", err)
	}

	rules := engine.Rules{
		RelativeVolumeMin: cfg.Rules.RelativeVolumeMin,
		ChangePercentMin:  cfg.Rules.ChangePercentMin,
		Cooldown:          cfg.Rules.Cooldown,
	}
	supervisor := feed.NewSupervisor(dialer, directory, engine.NewStore(), rules, alertSink, cfg.Feed.ReconnectDelay)

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg.Server.Addr, hub, store, supervisor)
		go func() {
			logger.Info("HTTP server listening on %s", cfg.Server.Addr)
			if err := srv.Start(); err != nil {
				logger.Error("HTTP server failed: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting feed supervisor (reconnect delay: %v, cooldown: %v, relative volume > %.2f, change > %.2f%%)",
		cfg.Feed.ReconnectDelay,
		cfg.Rules.Cooldown,
		cfg.Rules.RelativeVolumeMin,
		cfg.Rules.ChangePercentMin,
	)

	supervisor.Run(ctx)

	// Let queued alerts drain before the storage handle closes.
	select {
	case <-alertSink.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for alert sink to drain")
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed: %v", err)
		}
	}

	logger.Info("Service stopped")
}
