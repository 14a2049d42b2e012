package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"tracker/internal/board"
	"tracker/internal/config"
	"tracker/internal/notify"
	"tracker/internal/server"
	"tracker/internal/storage/sqlite"
	"tracker/internal/util"
)

func main() {
	configFlag := flag.String("config", util.EnvOrDefault("TRACKER_CONFIG", ""), "Path to JSONC config file")
	addrFlag := flag.String("addr", util.EnvOrDefault("TRACKER_ADDR", ""), "HTTP listen address (overrides config)")
	dbFlag := flag.String("db", util.EnvOrDefault("TRACKER_DB_PATH", ""), "Path to sqlite database file (overrides config)")
	staticFlag := flag.String("static", util.EnvOrDefault("TRACKER_STATIC_DIR", ""), "Directory with the built WebApp (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error("unable to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *dbFlag != "" {
		cfg.DBPath = *dbFlag
	}
	if *staticFlag != "" {
		cfg.StaticDir = *staticFlag
	}

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	var notifier interface {
		board.Notifier
		server.Registrar
	}
	if cfg.TelegramToken != "" {
		notifier = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramAPIURL)
	} else {
		logger.Warn("no telegram token configured; notifications disabled")
		notifier = notify.Nop{}
	}

	client := board.NewClient(store, notifier, cfg.StatusSet(), time.Duration(cfg.StoreTimeout), logger)
	if err := client.Reload(context.Background()); err != nil {
		logger.Error("unable to load tasks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(client, store, notifier, logger, cfg.StaticDir)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
