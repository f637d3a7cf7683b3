package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apiPkg "github.com/h1v3-io/pulse/internal/api"
	"github.com/h1v3-io/pulse/internal/archive"
	"github.com/h1v3-io/pulse/internal/config"
	"github.com/h1v3-io/pulse/internal/hub"
	"github.com/h1v3-io/pulse/internal/logbuf"
	"github.com/h1v3-io/pulse/internal/notify"
	"github.com/h1v3-io/pulse/internal/scheduler"
)

func main() {
	configPath := flag.String("config", os.Getenv("PULSE_CONFIG"), "Path to config JSON(C) file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("pulsed starting",
		"heartbeat_interval", cfg.Hub.HeartbeatInterval,
		"stale_threshold", cfg.Hub.StaleThreshold,
		"sweep_interval", cfg.Hub.SweepInterval,
	)

	// 1. Sinks
	sinks, closeSinks, err := buildSinks(cfg, logger)
	if err != nil {
		logger.Error("failed to init sinks", "error", err)
		os.Exit(1)
	}
	defer closeSinks()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Hub
	h := hub.New(hub.Config{
		HistoryCapacity: cfg.Hub.HistoryCapacity,
		StaleThreshold:  cfg.Hub.StaleThreshold.Std(),
		OutboxSize:      cfg.Hub.OutboxSize,
		SinkQueue:       cfg.Hub.SinkQueue,
	}, logger.With("component", "hub"), sinks...)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		safeGo(logger, "hub", func() { h.Run(ctx) })
	}()

	// 3. Stale sweep on its own clock
	sched := scheduler.New(logger.With("component", "scheduler"))
	err = sched.Every("stale-sweep", cfg.Hub.SweepInterval.Std(), func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := h.Sweep(sweepCtx); err != nil && ctx.Err() == nil {
			logger.Warn("stale sweep failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to schedule stale sweep", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 4. API server
	apiSrv := apiPkg.NewServer(h, apiPkg.Config{
		Host:            cfg.API.Host,
		Port:            cfg.API.Port,
		HistoryCapacity: cfg.Hub.HistoryCapacity,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server failed", "error", err)
			cancel()
		}
	})

	// 5. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()
	<-hubDone
	logger.Info("pulsed stopped")
}

// buildSinks opens the archive and notifiers named in cfg. The returned
// func closes whatever was opened.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]hub.Sink, func(), error) {
	var sinks []hub.Sink
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if path := cfg.Archive.Path; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("archive dir: %w", err)
		}
		store, err := archive.Open(path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
		logger.Info("event archive enabled", "path", path)
	}

	n := cfg.Notify
	if n.Slack != nil {
		s, err := notify.NewSlack(notify.SlackConfig{Token: n.Slack.Token, Channel: n.Slack.Channel, APIURL: n.Slack.APIURL})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewSink(s))
		logger.Info("slack alerts enabled", "channel", n.Slack.Channel)
	}
	if n.Telegram != nil {
		tg, err := notify.NewTelegram(notify.TelegramConfig{Token: n.Telegram.Token, ChatID: n.Telegram.ChatID})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewSink(tg))
		logger.Info("telegram alerts enabled", "chat_id", n.Telegram.ChatID)
	}
	for _, w := range n.Webhooks {
		wh, err := notify.NewWebhook(notify.WebhookConfig{URL: w.URL, Secret: w.Secret, BearerToken: w.BearerToken})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewSink(wh))
		logger.Info("webhook alerts enabled", "url", w.URL)
	}

	return sinks, closeAll, nil
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
