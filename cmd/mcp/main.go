package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/medvoice/internal/adapters/mcp"
	"github.com/kirillkom/medvoice/internal/bootstrap"
	"github.com/kirillkom/medvoice/internal/config"
	"github.com/kirillkom/medvoice/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol in stdio mode.
	logger, closeLog := logging.SetupConsole(os.Stderr, "mcp", cfg.LogLevel, cfg.LogFile)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Jobs, app.Questions, version, logger)
	switch cfg.MCPTransport {
	case "http":
		logger.Info("mcp_listening", "addr", cfg.MCPHTTPAddr)
		err = srv.ServeHTTP(cfg.MCPHTTPAddr)
	default:
		err = srv.ServeStdio()
	}
	if err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
