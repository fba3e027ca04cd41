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

	"github.com/kirillkom/medvoice/internal/bootstrap"
	"github.com/kirillkom/medvoice/internal/config"
	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/usecase"
	"github.com/kirillkom/medvoice/internal/observability/logging"
	"github.com/kirillkom/medvoice/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger, closeLog := logging.Setup("worker", cfg.LogLevel, cfg.LogFile)
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

	workerMetrics := metrics.NewWorkerMetrics("worker")
	runner := app.Runner.WithObserver(workerMetrics)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	jobTimeout := time.Duration(cfg.WorkerJobTimeoutSeconds) * time.Second

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency)
	err = app.Queue.SubscribeJobs(ctx, func(handlerCtx context.Context, msg domain.JobMessage) error {
		if !msg.SubmittedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(msg.SubmittedAt))
		}

		// Running jobs finish on shutdown; only the timeout bounds them.
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(handlerCtx), jobTimeout)
		defer cancel()

		workerMetrics.StartJob()
		start := time.Now()
		err := runner.Execute(jobCtx, msg)
		workerMetrics.FinishJob(time.Since(start), err)
		if err == nil {
			return nil
		}
		logger.Error("job_execution_failed", "job_id", msg.JobID, "error", err)
		// A failed job is acknowledged once its state is stored.
		if errors.Is(err, usecase.ErrStateNotRecorded) {
			return err
		}
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_failed", "error", err)
	}
	logger.Info("worker_stopped")
}
