package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/config"
	"github.com/Reverse-Call-Center/voice-playbook/dialogue"
	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/posthook"
	"github.com/Reverse-Call-Center/voice-playbook/server"
	"github.com/Reverse-Call-Center/voice-playbook/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", "config.yaml", "engine configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	pb, err := playbook.Load(cfg.Playbook)
	if err != nil {
		logger.Error("load playbook", "path", cfg.Playbook, "error", err)
		os.Exit(1)
	}
	if pb.Config.LLM != nil {
		// Deployment credentials override what the playbook declares.
		if cfg.LLM.APIKey != "" {
			pb.Config.LLM.APIKey = cfg.LLM.APIKey
		}
		if cfg.LLM.BaseURL != "" {
			pb.Config.LLM.BaseURL = cfg.LLM.BaseURL
		}
	}
	logger.Info("playbook loaded",
		"path", cfg.Playbook,
		"scenes", len(pb.SceneIDs()),
		"collectors", len(pb.CollectorNames()))

	registry := session.NewRegistry()
	hub := server.NewHub(logger)
	go hub.Run(ctx)

	notifier := posthook.NewNotifier(pb.Config.Posthook, logger)
	provider := dialogue.NewOpenAIProvider()

	sipServer := server.NewSIPServer(cfg, pb, provider, registry, notifier, hub, logger)
	httpServer := server.NewHTTPServer(cfg.HTTP.ListenAddress, registry, hub, logger)

	go func() {
		logger.Info("http server listening", "address", cfg.HTTP.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	if err := sipServer.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("sip server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
