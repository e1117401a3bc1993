package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/invoice-router/internal/bootstrap"
	"github.com/kirillkom/invoice-router/internal/config"
	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/observability/logging"
	"github.com/kirillkom/invoice-router/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Component:   service,
		Registerer:  workerMetrics.Registry(),
		RequireSink: true,
		WithQueue:   true,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	handler := func(handlerCtx context.Context, input domain.InvoiceInput) error {
		workerMetrics.StartMessage()
		start := time.Now()

		record, sinkErr, err := app.BatchUC.ProcessAndSave(handlerCtx, input, cfg.DocumentTimeout)
		if err != nil {
			workerMetrics.FinishMessage(service, time.Since(start), err)
			return err
		}
		if sinkErr != nil {
			workerMetrics.RecordSinkError(service)
		}
		logger.Debug("invoice_consumed", "invoice_id", record.InvoiceID, "status", record.Status)
		workerMetrics.FinishMessage(service, time.Since(start), nil)
		return nil
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribeInvoiceReceived(ctx, handler); err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
