package ports

import (
	"context"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

// InvoiceProcessor is the inbound contract for single-document routing.
type InvoiceProcessor interface {
	Process(ctx context.Context, input domain.InvoiceInput) (*domain.DecisionRecord, error)
}

// MetricsReader exposes the aggregated processing statistics.
type MetricsReader interface {
	Report() domain.MetricsReport
	Reset()
}
