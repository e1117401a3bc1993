package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/invoice-router/internal/config"
	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/ports"
	"github.com/kirillkom/invoice-router/internal/core/usecase"
	"github.com/kirillkom/invoice-router/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-router/internal/observability/metrics"
)

const defaultMaxBatchDocuments = 500

// invoiceRunner processes documents under the per-document timeout and
// hands every record, failures included, to the decision sink.
type invoiceRunner interface {
	Run(ctx context.Context, inputs []domain.InvoiceInput, opts usecase.BatchOptions) (*usecase.BatchResult, error)
	ProcessAndSave(ctx context.Context, input domain.InvoiceInput, timeout time.Duration) (*domain.DecisionRecord, error, error)
}

type breakerLister interface {
	States() []resilience.BreakerState
}

type connectionChecker interface {
	Healthy() bool
}

type Router struct {
	runner invoiceRunner
	report ports.MetricsReader
	queue  ports.InvoiceQueue

	batchOptions      usecase.BatchOptions
	maxBatchDocuments int
	maxBodyBytes      int64

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration

	prom     *metrics.HTTPServerMetrics
	breakers breakerLister
}

// NewRouter wires the invoice API. Single invoices and batches both go
// through runner, so they share the document timeout and sink handling.
func NewRouter(cfg config.Config, runner invoiceRunner, report ports.MetricsReader) *Router {
	maxBatch := cfg.APIMaxBatchDocuments
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchDocuments
	}
	return &Router{
		runner: runner,
		report: report,
		batchOptions: usecase.BatchOptions{
			Workers:         cfg.BatchWorkers,
			DocumentTimeout: cfg.DocumentTimeout,
		},
		maxBatchDocuments: maxBatch,
		maxBodyBytes:      cfg.APIMaxBodyBytes,
		rateLimitRPS:      cfg.APIRateLimitRPS,
		rateLimitBurst:    cfg.APIRateLimitBurst,
		maxInFlight:       cfg.APIMaxInFlight,
		backpressureWait:  cfg.APIBackpressureWait,
	}
}

// WithPrometheus mounts /metrics and request instrumentation.
func (rt *Router) WithPrometheus(m *metrics.HTTPServerMetrics) *Router {
	rt.prom = m
	return rt
}

// WithQueue enables asynchronous intake through POST /v1/invoices/queue.
func (rt *Router) WithQueue(q ports.InvoiceQueue) *Router {
	rt.queue = q
	return rt
}

// WithBreakers reports circuit breaker states on /healthz.
func (rt *Router) WithBreakers(b breakerLister) *Router {
	rt.breakers = b
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/invoices", rt.processInvoice)
	mux.HandleFunc("POST /v1/invoices/batch", rt.processBatch)
	if rt.queue != nil {
		mux.HandleFunc("POST /v1/invoices/queue", rt.enqueueInvoice)
	}
	mux.HandleFunc("GET /v1/metrics", rt.getMetrics)
	mux.HandleFunc("POST /v1/metrics/reset", rt.resetMetrics)
	if rt.prom != nil {
		mux.Handle("GET /metrics", rt.prom.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.prom != nil {
		handler = instrumentMiddleware(handler, rt.prom)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

// healthz is a liveness probe: it always answers 200 and reports
// "degraded" while the queue is disconnected or a breaker is not closed.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if checker, ok := rt.queue.(connectionChecker); ok {
		connected := checker.Healthy()
		resp["queue_connected"] = connected
		if !connected {
			resp["status"] = "degraded"
		}
	}
	if rt.breakers != nil {
		states := rt.breakers.States()
		for _, st := range states {
			if st.State != "closed" {
				resp["status"] = "degraded"
			}
		}
		resp["breakers"] = states
	}
	writeJSON(w, http.StatusOK, resp)
}

type invoiceRequest struct {
	ID      *int   `json:"id"`
	Content string `json:"content"`
}

func (req invoiceRequest) toInput(position int) (domain.InvoiceInput, error) {
	if req.ID == nil {
		return domain.InvoiceInput{}, fmt.Errorf("invoice %d: id is required", position)
	}
	if strings.TrimSpace(req.Content) == "" {
		return domain.InvoiceInput{}, fmt.Errorf("invoice %d: content is required", position)
	}
	return domain.InvoiceInput{ID: *req.ID, Content: req.Content}, nil
}

func (rt *Router) processInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !rt.decodeBody(w, r, &req) {
		return
	}
	input, err := req.toInput(0)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "process invoice", err))
		return
	}

	// A timed out document still answers 200 with its failure record,
	// matching what a batch returns for the same document.
	record, sinkErr, err := rt.runner.ProcessAndSave(r.Context(), input, rt.batchOptions.DocumentTimeout)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sinkErr != nil {
		slog.Warn("decision_not_persisted",
			"request_id", requestIDFromContext(r.Context()),
			"invoice_id", record.InvoiceID,
		)
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) enqueueInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !rt.decodeBody(w, r, &req) {
		return
	}
	input, err := req.toInput(0)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "enqueue invoice", err))
		return
	}
	if err := rt.queue.PublishInvoiceReceived(r.Context(), input); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "invoice_id": input.ID})
}

func (rt *Router) processBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Invoices []invoiceRequest `json:"invoices"`
		Workers  int              `json:"workers"`
	}
	if !rt.decodeBody(w, r, &req) {
		return
	}
	if len(req.Invoices) == 0 {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "process batch", errors.New("invoices are required")))
		return
	}
	if len(req.Invoices) > rt.maxBatchDocuments {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "process batch",
			fmt.Errorf("batch of %d exceeds the limit of %d", len(req.Invoices), rt.maxBatchDocuments)))
		return
	}

	inputs := make([]domain.InvoiceInput, 0, len(req.Invoices))
	for i, item := range req.Invoices {
		input, err := item.toInput(i)
		if err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "process batch", err))
			return
		}
		inputs = append(inputs, input)
	}

	opts := rt.batchOptions
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	if rt.prom != nil {
		rt.prom.RecordBatchSize(len(inputs))
	}

	result, err := rt.runner.Run(r.Context(), inputs, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.report.Report())
}

func (rt *Router) resetMetrics(w http.ResponseWriter, _ *http.Request) {
	rt.report.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := r.Body
	if rt.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)
	}
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
