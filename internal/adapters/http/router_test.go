package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/invoice-router/internal/config"
	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/usecase"
	"github.com/kirillkom/invoice-router/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-router/internal/observability/metrics"
)

type batchFake struct {
	err    error
	inputs []domain.InvoiceInput
	opts   usecase.BatchOptions

	single  []domain.InvoiceInput
	timeout time.Duration
	record  *domain.DecisionRecord
	sinkErr error
}

func (f *batchFake) Run(_ context.Context, inputs []domain.InvoiceInput, opts usecase.BatchOptions) (*usecase.BatchResult, error) {
	f.inputs = inputs
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	records := make([]*domain.DecisionRecord, len(inputs))
	for i, in := range inputs {
		records[i] = &domain.DecisionRecord{InvoiceID: in.ID, Status: domain.StatusCompleted}
	}
	return &usecase.BatchResult{RunID: "run-1", Records: records}, nil
}

func (f *batchFake) ProcessAndSave(_ context.Context, input domain.InvoiceInput, timeout time.Duration) (*domain.DecisionRecord, error, error) {
	f.single = append(f.single, input)
	f.timeout = timeout
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.record != nil {
		return f.record, f.sinkErr, nil
	}
	return &domain.DecisionRecord{
		InvoiceID: input.ID,
		Status:    domain.StatusCompleted,
		Approval:  domain.ApprovalResult{Decision: domain.DecisionAutoApproved},
	}, f.sinkErr, nil
}

type reportFake struct {
	resets int
}

func (f *reportFake) Report() domain.MetricsReport {
	return domain.MetricsReport{Raw: domain.Metrics{TotalProcessed: 3, AutoApproved: 3}}
}

func (f *reportFake) Reset() { f.resets++ }

type queueFake struct {
	err       error
	published []domain.InvoiceInput
}

func (f *queueFake) PublishInvoiceReceived(_ context.Context, input domain.InvoiceInput) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, input)
	return nil
}

func (f *queueFake) SubscribeInvoiceReceived(context.Context, func(context.Context, domain.InvoiceInput) error) error {
	return nil
}

type breakersFake struct {
	states []resilience.BreakerState
}

func (f *breakersFake) States() []resilience.BreakerState { return f.states }

type connectedQueueFake struct {
	queueFake
	connected bool
}

func (f *connectedQueueFake) Healthy() bool { return f.connected }

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, &batchFake{}, &reportFake{}).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzSetsRequestID(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected caller request id to be echoed, got %q", got)
	}
}

func TestHealthzReportsDegradedDependencies(t *testing.T) {
	queue := &connectedQueueFake{connected: true}
	breakers := &breakersFake{states: []resilience.BreakerState{{Operation: "ollama.generate", State: "closed"}}}
	handler := NewRouter(config.Config{}, &batchFake{}, &reportFake{}).
		WithQueue(queue).
		WithBreakers(breakers).
		Handler()

	status := func() (string, map[string]any) {
		t.Helper()
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode healthz: %v", err)
		}
		return body["status"].(string), body
	}

	if got, body := status(); got != "ok" || body["queue_connected"] != true {
		t.Fatalf("expected healthy service, got %v", body)
	}

	breakers.states[0].State = "open"
	if got, _ := status(); got != "degraded" {
		t.Fatalf("expected degraded with an open breaker, got %q", got)
	}

	breakers.states[0].State = "closed"
	queue.connected = false
	if got, body := status(); got != "degraded" || body["queue_connected"] != false {
		t.Fatalf("expected degraded without queue connection, got %v", body)
	}
}

func TestProcessInvoiceRunsUnderDocumentTimeout(t *testing.T) {
	batch := &batchFake{}
	cfg := config.Config{DocumentTimeout: 90 * time.Second}
	handler := NewRouter(cfg, batch, &reportFake{}).Handler()

	res := postJSON(t, handler, "/v1/invoices", `{"id": 7, "content": "FACTURA F-7"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var record domain.DecisionRecord
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.InvoiceID != 7 || record.Approval.Decision != domain.DecisionAutoApproved {
		t.Fatalf("unexpected record: %+v", record)
	}
	if len(batch.single) != 1 || batch.single[0].Content != "FACTURA F-7" {
		t.Fatalf("unexpected inputs: %+v", batch.single)
	}
	if batch.timeout != 90*time.Second {
		t.Fatalf("expected document timeout to be passed through, got %s", batch.timeout)
	}
}

func TestProcessInvoiceReturnsFailureRecord(t *testing.T) {
	batch := &batchFake{record: &domain.DecisionRecord{
		InvoiceID: 3,
		Status:    domain.StatusFailed,
		Error:     "document timed out after 1s",
	}}
	handler := NewRouter(config.Config{DocumentTimeout: time.Second}, batch, &reportFake{}).Handler()

	res := postJSON(t, handler, "/v1/invoices", `{"id": 3, "content": "x"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var record domain.DecisionRecord
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.Status != domain.StatusFailed || record.Error == "" {
		t.Fatalf("expected failure record, got %+v", record)
	}
}

func TestProcessInvoiceSinkErrorStillReturnsRecord(t *testing.T) {
	batch := &batchFake{sinkErr: errors.New("db down")}
	handler := NewRouter(config.Config{}, batch, &reportFake{}).Handler()

	res := postJSON(t, handler, "/v1/invoices", `{"id": 1, "content": "x"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestProcessInvoiceRejectsBadRequests(t *testing.T) {
	batch := &batchFake{}
	handler := NewRouter(config.Config{}, batch, &reportFake{}).Handler()

	cases := map[string]string{
		"missing id":     `{"content": "x"}`,
		"blank content":  `{"id": 1, "content": "   "}`,
		"unknown field":  `{"id": 1, "content": "x", "amount": 5}`,
		"malformed json": `{"id": 1,`,
		"wrong id type":  `{"id": "one", "content": "x"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := postJSON(t, handler, "/v1/invoices", body)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
		})
	}
	if len(batch.single) != 0 {
		t.Fatalf("runner must not be called for bad requests")
	}
}

func TestProcessInvoiceRejectsOversizedBody(t *testing.T) {
	handler := NewRouter(config.Config{APIMaxBodyBytes: 32}, &batchFake{}, &reportFake{}).Handler()

	body := `{"id": 1, "content": "` + strings.Repeat("x", 64) + `"}`
	res := postJSON(t, handler, "/v1/invoices", body)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestProcessInvoiceMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "extract", errors.New("503")), want: http.StatusServiceUnavailable},
		{name: "extraction", err: domain.WrapError(domain.ErrExtractionFailed, "extract", errors.New("bad reply")), want: http.StatusBadGateway},
		{name: "unknown decision", err: domain.WrapError(domain.ErrUnknownDecision, "record", errors.New("x")), want: http.StatusInternalServerError},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, &batchFake{err: tc.err}, &reportFake{}).Handler()
			res := postJSON(t, handler, "/v1/invoices", `{"id": 1, "content": "x"}`)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestProcessBatch(t *testing.T) {
	batch := &batchFake{}
	cfg := config.Config{BatchWorkers: 3, DocumentTimeout: 5 * time.Second}
	handler := NewRouter(cfg, batch, &reportFake{}).Handler()

	res := postJSON(t, handler, "/v1/invoices/batch", `{"invoices": [{"id": 1, "content": "a"}, {"id": 2, "content": "b"}]}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(batch.inputs) != 2 || batch.inputs[1].ID != 2 {
		t.Fatalf("unexpected batch inputs: %+v", batch.inputs)
	}
	if batch.opts.Workers != 3 || batch.opts.DocumentTimeout != 5*time.Second {
		t.Fatalf("expected configured batch options, got %+v", batch.opts)
	}

	var result usecase.BatchResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.RunID != "run-1" || len(result.Records) != 2 {
		t.Fatalf("unexpected batch result: %+v", result)
	}

	res = postJSON(t, handler, "/v1/invoices/batch", `{"invoices": [{"id": 1, "content": "a"}], "workers": 8}`)
	if res.Code != http.StatusOK || batch.opts.Workers != 8 {
		t.Fatalf("expected workers override, got status %d opts %+v", res.Code, batch.opts)
	}
}

func TestProcessBatchValidation(t *testing.T) {
	batch := &batchFake{}
	handler := NewRouter(config.Config{APIMaxBatchDocuments: 2}, batch, &reportFake{}).Handler()

	cases := map[string]string{
		"empty":          `{"invoices": []}`,
		"over the limit": `{"invoices": [{"id": 1, "content": "a"}, {"id": 2, "content": "b"}, {"id": 3, "content": "c"}]}`,
		"blank content":  `{"invoices": [{"id": 1, "content": "a"}, {"id": 2, "content": ""}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := postJSON(t, handler, "/v1/invoices/batch", body)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
		})
	}
	if batch.inputs != nil {
		t.Fatalf("batch runner must not be called for invalid batches")
	}
}

func TestMetricsEndpoints(t *testing.T) {
	report := &reportFake{}
	handler := NewRouter(config.Config{}, &batchFake{}, report).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var got domain.MetricsReport
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if got.Raw.TotalProcessed != 3 {
		t.Fatalf("unexpected metrics report: %+v", got)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/metrics/reset", bytes.NewReader(nil)))
	if res.Code != http.StatusNoContent || report.resets != 1 {
		t.Fatalf("expected reset, got status %d resets %d", res.Code, report.resets)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/metrics/reset", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET reset, got %d", res.Code)
	}
}

func TestPrometheusEndpointIsMounted(t *testing.T) {
	prom := metrics.NewHTTPServerMetrics("api")
	handler := NewRouter(config.Config{}, &batchFake{}, &reportFake{}).
		WithPrometheus(prom).
		Handler()

	postJSON(t, handler, "/v1/invoices/batch", `{"invoices": [{"id": 1, "content": "a"}]}`)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "invoice_router_http_batch_documents") {
		t.Fatalf("expected batch size histogram in output")
	}
	if !strings.Contains(body, `route="POST /v1/invoices/batch"`) {
		t.Fatalf("expected requests labelled by mux pattern:\n%s", body)
	}
}

func TestEnqueueInvoice(t *testing.T) {
	queue := &queueFake{}
	handler := NewRouter(config.Config{}, &batchFake{}, &reportFake{}).
		WithQueue(queue).
		Handler()

	res := postJSON(t, handler, "/v1/invoices/queue", `{"id": 11, "content": "FACTURA F-11"}`)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(queue.published) != 1 || queue.published[0].ID != 11 {
		t.Fatalf("unexpected published inputs: %+v", queue.published)
	}

	queue.err = domain.WrapError(domain.ErrTemporary, "publish", errors.New("nats down"))
	res = postJSON(t, handler, "/v1/invoices/queue", `{"id": 12, "content": "x"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestEnqueueRouteAbsentWithoutQueue(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := postJSON(t, handler, "/v1/invoices/queue", `{"id": 1, "content": "x"}`)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a queue, got %d", res.Code)
	}
}
