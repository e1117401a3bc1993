package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/ports"
)

const extractionErrorLimit = 100

// ProcessInvoiceUseCase runs one document through classify, extract, score,
// route and output, then records it in the metrics aggregator.
type ProcessInvoiceUseCase struct {
	policy     *domain.Policy
	classifier *Classifier
	extractor  ports.FieldExtractor
	scorer     *RiskScorer
	router     *ApprovalRouter
	metrics    *MetricsAggregator
	logger     *slog.Logger
	now        func() time.Time
}

func NewProcessInvoiceUseCase(
	policy *domain.Policy,
	classifier *Classifier,
	extractor ports.FieldExtractor,
	metrics *MetricsAggregator,
	logger *slog.Logger,
) *ProcessInvoiceUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessInvoiceUseCase{
		policy:     policy,
		classifier: classifier,
		extractor:  extractor,
		scorer:     NewRiskScorer(policy),
		router:     NewApprovalRouter(policy),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func (uc *ProcessInvoiceUseCase) Process(ctx context.Context, input domain.InvoiceInput) (*domain.DecisionRecord, error) {
	inv := domain.NewInvoice(input.ID, input.Content, uc.now())

	uc.detectFormat(inv)
	if err := uc.extractFields(ctx, inv); err != nil {
		return nil, err
	}
	uc.scoreRisk(inv)
	uc.route(inv)

	finishedAt := uc.now()
	record := BuildDecisionRecord(inv, uc.policy, finishedAt)
	inv.Status = domain.StatusCompleted

	// An aborted document is discarded as a whole.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("process invoice %d: %w", inv.ID, err)
	}
	if err := uc.metrics.Record(outcomeOf(inv, finishedAt.Sub(inv.StartedAt))); err != nil {
		return nil, fmt.Errorf("process invoice %d: %w", inv.ID, err)
	}

	uc.logger.Info("invoice_routed",
		"invoice_id", inv.ID,
		"document_type", inv.DocumentType,
		"language", inv.Language,
		"decision", inv.Decision,
		"risk_score", record.Metadata.RiskScore,
		"errors", len(inv.ValidationErrors),
		"duration_ms", float64(finishedAt.Sub(inv.StartedAt).Microseconds())/1000.0,
	)
	return record, nil
}

func (uc *ProcessInvoiceUseCase) detectFormat(inv *domain.Invoice) {
	cls := uc.classifier.Classify(inv.RawContent)
	inv.ContentHash = cls.ContentHash
	inv.DocumentType = cls.DocumentType
	inv.Language = cls.Language
	inv.Status = domain.StatusFormatDetected

	uc.logger.Debug("format_detected",
		"invoice_id", inv.ID,
		"document_type", cls.DocumentType,
		"language", cls.Language,
		"cache_hit", cls.Cached,
	)
}

// extractFields degrades extraction failures into a validation error. Only
// cancellation of ctx aborts the document.
func (uc *ProcessInvoiceUseCase) extractFields(ctx context.Context, inv *domain.Invoice) error {
	inv.APICalls++
	fields, err := uc.extractor.Extract(ctx, ports.ExtractionRequest{
		InvoiceID:    inv.ID,
		DocumentType: inv.DocumentType,
		Language:     inv.Language,
		Content:      inv.RawContent,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return fmt.Errorf("extract fields for invoice %d: %w", inv.ID, err)
		}
		msg := truncate("Extraction failed: "+err.Error(), extractionErrorLimit)
		inv.Fields = domain.Fields{}
		inv.ValidationErrors = append(inv.ValidationErrors, msg)
		inv.ExtractionError = msg
		inv.Status = domain.StatusExtractionFailed
		uc.logger.Warn("extraction_failed", "invoice_id", inv.ID, "error", err)
		return nil
	}

	if fields == nil {
		fields = domain.Fields{}
	}
	inv.Fields = fields
	inv.Status = domain.StatusDataExtracted
	return nil
}

func (uc *ProcessInvoiceUseCase) scoreRisk(inv *domain.Invoice) {
	a := uc.scorer.Score(inv.Fields, inv.ValidationErrors, inv.DocumentType)
	inv.ValidationErrors = a.Errors
	inv.RiskScore = a.Score
	inv.RiskFactors = a.Factors
	inv.Anomalies = a.Anomalies
	inv.ComplianceFlags = a.ComplianceFlags
	inv.CriticalAnomaly = a.CriticalAnomaly
	if len(a.Errors) == 0 {
		inv.Status = domain.StatusValidated
	} else {
		inv.Status = domain.StatusValidationFailed
	}
}

func (uc *ProcessInvoiceUseCase) route(inv *domain.Invoice) {
	routing := uc.router.Route(inv.Fields, inv.ValidationErrors, inv.RiskScore, inv.DocumentType)
	inv.Decision = routing.Decision
	inv.DecisionReason = routing.Reason
	inv.Escalated = routing.Escalated
	inv.RoutingFault = routing.Fault
	inv.Status = domain.StatusRouted

	if routing.Fault {
		uc.logger.Error("routing_fault", "invoice_id", inv.ID, "reason", routing.Reason)
	}
}

func outcomeOf(inv *domain.Invoice, duration time.Duration) domain.Outcome {
	o := domain.Outcome{
		InvoiceID:       inv.ID,
		DocumentType:    inv.DocumentType,
		Decision:        inv.Decision,
		Reason:          inv.DecisionReason,
		RiskScore:       inv.RiskScore,
		Escalated:       inv.Escalated,
		RoutingFault:    inv.RoutingFault,
		CriticalAnomaly: inv.CriticalAnomaly,
		ErrorCount:      len(inv.ValidationErrors),
		APICalls:        inv.APICalls,
		Duration:        duration,
	}
	if inv.ExtractionError != "" {
		o.Errors = append(o.Errors, inv.ExtractionError)
	}
	if inv.RoutingFault {
		o.Errors = append(o.Errors, inv.DecisionReason)
	}
	return o
}
