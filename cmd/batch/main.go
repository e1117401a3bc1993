package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/invoice-router/internal/bootstrap"
	"github.com/kirillkom/invoice-router/internal/config"
	source "github.com/kirillkom/invoice-router/internal/infrastructure/source/localfs"
	storage "github.com/kirillkom/invoice-router/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/invoice-router/internal/observability/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	var (
		file    = flag.String("file", "invoices.csv", "CSV, XLSX, PDF or text file with invoices")
		start   = flag.Int("start", 0, "first row to process")
		end     = flag.Int("end", 0, "row after the last one to process (0 = all)")
		output  = flag.String("output", cfg.ResultsPath, "directory for the results file")
		workers = flag.Int("workers", cfg.BatchWorkers, "documents processed in parallel")
		publish = flag.Bool("publish", false, "enqueue the documents on NATS instead of processing them")
		quiet   = flag.Bool("quiet", false, "skip the summary")
	)
	flag.Parse()

	logLevel := cfg.LogLevel
	if *quiet {
		logLevel = "warn"
	}
	logger := logging.NewJSONLogger("batch", logLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := source.New(*start, *end).Load(ctx, *file)
	if err != nil {
		logger.Error("load_failed", "file", *file, "error", err)
		return 1
	}
	if len(inputs) == 0 {
		logger.Error("no_invoices", "file", *file, "start", *start, "end", *end)
		return 1
	}

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Component: "batch",
		WithQueue: *publish,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		return 1
	}
	defer app.Close()

	if *publish {
		for _, input := range inputs {
			if err := app.Queue.PublishInvoiceReceived(ctx, input); err != nil {
				logger.Error("publish_failed", "invoice_id", input.ID, "error", err)
				return 1
			}
		}
		fmt.Printf("Queued %d invoices on %s\n", len(inputs), cfg.NATSSubject)
		return 0
	}

	opts := app.BatchOptions()
	opts.Workers = *workers
	result, err := app.BatchUC.Run(ctx, inputs, opts)
	if err != nil {
		logger.Error("batch_failed", "error", err)
		return 1
	}

	store, err := storage.New(*output)
	if err != nil {
		logger.Error("results_dir_failed", "error", err)
		return 1
	}
	name := fmt.Sprintf("invoice_results_%s.json", result.StartedAt.Format("20060102_150405"))
	path, err := store.SaveJSON(ctx, name, result)
	if err != nil {
		logger.Error("save_results_failed", "error", err)
		return 1
	}

	if !*quiet {
		writeSummary(os.Stdout, result)
	}
	fmt.Printf("\nPROCESSING COMPLETED in %s\nResults file: %s\n", result.Duration.Round(time.Millisecond), path)
	return 0
}
