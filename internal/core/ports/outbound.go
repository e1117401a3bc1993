package ports

import (
	"context"
	"time"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

// ExtractionRequest is what the extraction service needs to read one
// document.
type ExtractionRequest struct {
	InvoiceID    int
	DocumentType domain.DocumentType
	Language     domain.Language
	Content      string
}

// FieldExtractor turns raw document text into the extracted field map.
type FieldExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (domain.Fields, error)
}

// DecisionSink delivers finished decision records downstream.
type DecisionSink interface {
	Save(ctx context.Context, record *domain.DecisionRecord) error
}

// InvoiceQueue publishes/consumes raw invoice intake events.
type InvoiceQueue interface {
	PublishInvoiceReceived(ctx context.Context, input domain.InvoiceInput) error
	SubscribeInvoiceReceived(ctx context.Context, handler func(context.Context, domain.InvoiceInput) error) error
}

// InvoiceSource loads raw documents for batch processing.
type InvoiceSource interface {
	Load(ctx context.Context, path string) ([]domain.InvoiceInput, error)
}

// OutcomeObserver is notified after each document is accounted for.
type OutcomeObserver interface {
	ObserveOutcome(outcome domain.Outcome)
	ObserveFailure(duration time.Duration)
}
