package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-join-approve-bot/bot"
	"telegram-join-approve-bot/config"
	"telegram-join-approve-bot/keepalive"
	"telegram-join-approve-bot/metrics"
	"telegram-join-approve-bot/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Parse command-line flags
	verbose := flag.Bool("v", false, "Enable verbose logging (LevelInfo)")
	veryVerbose := flag.Bool("vv", false, "Enable very verbose logging (LevelDebug)")
	configPath := flag.String("config", "", "Path to an optional YAML config file")
	flag.Parse()

	// Set up logging
	setLogLevel(*verbose, *veryVerbose)

	slog.Debug("main: Command-line flags parsed", "verbose", *verbose, "very_verbose", *veryVerbose, "config", *configPath)

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("main: Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	slog.Debug("main: Initializing storage")
	store, err := storage.Open(ctx, conf.Storage.DSN, storage.Options{
		DefaultButtonURL: conf.Welcome.DefaultButtonURL,
		Location:         conf.Location(),
	})
	if err != nil {
		slog.Error("main: Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("main: Failed to close storage", "error", err)
		}
	}()
	slog.Debug("main: Storage initialized successfully")

	var settings storage.SettingsStore = store
	if conf.Cache.Enabled && conf.Cache.SizeMB > 0 {
		settings = storage.NewCachedSettings(store, conf.Cache.SizeMB, conf.Cache.TTL)
		slog.Debug("main: Settings cache enabled", "size_mb", conf.Cache.SizeMB, "ttl", conf.Cache.TTL)
	}

	recorder := metrics.Noop()
	var gatherer prometheus.Gatherer
	if conf.HTTP.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.New(reg)
		gatherer = reg
	}

	// Health and metrics endpoint
	var server *http.Server
	if conf.HTTP.Addr != "" {
		server = keepalive.NewServer(conf.HTTP.Addr, gatherer)
		go func() {
			slog.Info("main: Health server listening", "addr", conf.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("main: Health server failed", "error", err)
			}
		}()
	}

	if conf.Keepalive.PingURL != "" {
		pinger := keepalive.NewPinger(conf.Keepalive.PingURL, conf.Keepalive.Interval, conf.Keepalive.Timeout)
		pinger.Start()
		defer pinger.Stop()
	}

	// Initialize bot
	slog.Debug("main: Initializing bot")
	b, err := bot.New(conf.Telegram.Token, settings, store, recorder)
	if err != nil {
		slog.Error("main: Failed to initialize bot", "error", err)
		os.Exit(1)
	}

	slog.Info("main: Starting bot...")
	if err := b.Run(ctx); err != nil {
		slog.Error("main: Bot stopped with error", "error", err)
	}
	slog.Info("main: Shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("main: Failed to stop health server", "error", err)
		}
	}
}

// setLogLevel configures the logging level based on the provided flags
func setLogLevel(verbose, veryVerbose bool) {
	logLevel := slog.LevelWarn
	if veryVerbose {
		logLevel = slog.LevelDebug
	} else if verbose {
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Debug("main: Log level set to", "level", logLevel.String())
}
