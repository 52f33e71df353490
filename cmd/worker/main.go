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

	"github.com/kirillkom/biomed-literature-assistant/internal/bootstrap"
	"github.com/kirillkom/biomed-literature-assistant/internal/config"
	"github.com/kirillkom/biomed-literature-assistant/internal/observability/logging"
	"github.com/kirillkom/biomed-literature-assistant/internal/observability/metrics"
)

const (
	serviceName         = "worker"
	batchTimeout        = 15 * time.Minute
	statusRefreshPeriod = 30 * time.Second
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.WithLogger(logger))
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go refreshArticleCounts(ctx, app, workerMetrics, logger)

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeArticlesQueued(ctx, func(handlerCtx context.Context, pmids []string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, batchTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartBatch(serviceName, len(pmids))
		err := app.ProcessUC.ProcessBatch(processCtx, pmids)
		workerMetrics.FinishBatch(serviceName, time.Since(started), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		stop()
	}
}

func refreshArticleCounts(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, logger *slog.Logger) {
	ticker := time.NewTicker(statusRefreshPeriod)
	defer ticker.Stop()
	for {
		counts, err := app.Articles.CountByStatus(ctx)
		if err != nil {
			logger.Warn("article_counts_failed", "error", err)
		} else {
			m.SetArticleCounts(serviceName, counts)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
