package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/ports"
)

const defaultBatchWorkers = 4

type BatchOptions struct {
	Workers         int
	DocumentTimeout time.Duration
}

// BatchResult holds one record per input, in input order.
type BatchResult struct {
	RunID      string                   `json:"run_id"`
	Records    []*domain.DecisionRecord `json:"records"`
	Failed     int                      `json:"failed"`
	SinkErrors int                      `json:"sink_errors"`
	StartedAt  time.Time                `json:"started_at"`
	Duration   time.Duration            `json:"duration"`
	Report     domain.MetricsReport     `json:"report"`
}

type BatchUseCase struct {
	processor ports.InvoiceProcessor
	metrics   *MetricsAggregator
	sink      ports.DecisionSink
	logger    *slog.Logger
	now       func() time.Time
}

// NewBatchUseCase builds a batch runner. sink may be nil.
func NewBatchUseCase(processor ports.InvoiceProcessor, metrics *MetricsAggregator, sink ports.DecisionSink, logger *slog.Logger) *BatchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchUseCase{
		processor: processor,
		metrics:   metrics,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// Run processes inputs with bounded concurrency. A document that times out
// or fails hard yields a failure record. Cancelling ctx aborts the whole run.
func (uc *BatchUseCase) Run(ctx context.Context, inputs []domain.InvoiceInput, opts BatchOptions) (*BatchResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	result := &BatchResult{
		RunID:     uuid.NewString(),
		Records:   make([]*domain.DecisionRecord, len(inputs)),
		StartedAt: uc.now(),
	}
	failed := make([]bool, len(inputs))
	sinkFailed := make([]bool, len(inputs))

	uc.logger.Info("batch_started", "run_id", result.RunID, "documents", len(inputs), "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range inputs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			record, sinkErr, err := uc.ProcessAndSave(gctx, inputs[i], opts.DocumentTimeout)
			if err != nil {
				return err
			}
			result.Records[i] = record
			failed[i] = record.Status == domain.StatusFailed
			sinkFailed[i] = sinkErr != nil
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", result.RunID, err)
	}

	for i := range inputs {
		if failed[i] {
			result.Failed++
		}
		if sinkFailed[i] {
			result.SinkErrors++
		}
	}
	result.Duration = uc.now().Sub(result.StartedAt)
	if uc.metrics != nil {
		result.Report = uc.metrics.Report()
	}

	uc.logger.Info("batch_completed",
		"run_id", result.RunID,
		"documents", len(inputs),
		"failed", result.Failed,
		"sink_errors", result.SinkErrors,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// ProcessAndSave routes one document under the per-document timeout and
// hands the record to the sink. err is set only when ctx is done; a failed
// save is logged and returned as sinkErr.
func (uc *BatchUseCase) ProcessAndSave(ctx context.Context, input domain.InvoiceInput, timeout time.Duration) (record *domain.DecisionRecord, sinkErr error, err error) {
	record, err = uc.processOne(ctx, input, timeout)
	if err != nil {
		return nil, nil, err
	}
	if uc.sink == nil {
		return record, nil, nil
	}
	if sinkErr = uc.sink.Save(ctx, record); sinkErr != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		uc.logger.Warn("decision_sink_failed", "invoice_id", record.InvoiceID, "error", sinkErr)
	}
	return record, sinkErr, nil
}

// processOne returns an error only when the parent context is done.
func (uc *BatchUseCase) processOne(ctx context.Context, input domain.InvoiceInput, timeout time.Duration) (*domain.DecisionRecord, error) {
	docCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startedAt := uc.now()
	record, err := uc.processor.Process(docCtx, input)
	if err == nil {
		return record, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	finishedAt := uc.now()
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("document timed out after %s", timeout)
	}
	if uc.metrics != nil {
		uc.metrics.RecordFailure(input.ID, finishedAt.Sub(startedAt), err)
	}
	uc.logger.Error("invoice_failed", "invoice_id", input.ID, "error", err)
	return BuildFailureRecord(input, err, startedAt, finishedAt), nil
}
