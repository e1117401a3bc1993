package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/ports"
)

const (
	highRiskScore     = 0.7
	maxRecordedErrors = 1000
)

// MetricsAggregator owns the process-wide counters. Every processed
// document is recorded exactly once, under a single lock, so the decision
// buckets plus hard failures always add up to the total.
type MetricsAggregator struct {
	mu       sync.Mutex
	m        domain.Metrics
	observer ports.OutcomeObserver
}

func NewMetricsAggregator(observer ports.OutcomeObserver) *MetricsAggregator {
	return &MetricsAggregator{
		m:        domain.Metrics{Errors: []string{}},
		observer: observer,
	}
}

// Record accounts for one routed document. Unknown decisions are rejected
// without touching any counter.
func (a *MetricsAggregator) Record(o domain.Outcome) error {
	if !o.Decision.Valid() {
		return domain.WrapError(domain.ErrUnknownDecision, "record outcome", fmt.Errorf("invoice %d: %q", o.InvoiceID, o.Decision))
	}

	a.mu.Lock()
	switch o.Decision {
	case domain.DecisionAutoApproved:
		a.m.AutoApproved++
	case domain.DecisionSupervisorReview:
		a.m.SupervisorReview++
	case domain.DecisionManagerReview:
		a.m.ManagerReview++
	case domain.DecisionExecutiveReview:
		a.m.ExecutiveReview++
	case domain.DecisionRejected:
		a.m.Rejected++
	}
	a.m.TotalProcessed++

	if o.ErrorCount > 0 {
		a.m.ValidationErrors++
	}
	if o.CriticalAnomaly {
		a.m.CriticalAnomalies++
	}
	if o.Escalated {
		a.m.DocumentTypeEscalation++
	}
	if o.RiskScore > highRiskScore {
		a.m.HighRiskScores++
	}
	if o.RoutingFault {
		a.m.RoutingFaults++
	}
	for _, msg := range o.Errors {
		a.appendError(fmt.Sprintf("Invoice %d: %s", o.InvoiceID, msg))
	}
	a.m.ProcessingTimeTotal += o.Duration
	a.m.APICallsUsed += o.APICalls
	a.mu.Unlock()

	if a.observer != nil {
		a.observer.ObserveOutcome(o)
	}
	return nil
}

// RecordFailure counts a document that could not produce a decision.
func (a *MetricsAggregator) RecordFailure(invoiceID int, duration time.Duration, err error) {
	a.mu.Lock()
	a.m.HardFailures++
	a.m.TotalProcessed++
	a.m.ProcessingTimeTotal += duration
	a.appendError(fmt.Sprintf("Invoice %d: %v", invoiceID, err))
	a.mu.Unlock()

	if a.observer != nil {
		a.observer.ObserveFailure(duration)
	}
}

func (a *MetricsAggregator) appendError(msg string) {
	a.m.ErrorCount++
	if len(a.m.Errors) >= maxRecordedErrors {
		return
	}
	a.m.Errors = append(a.m.Errors, msg)
}

func (a *MetricsAggregator) Snapshot() domain.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.m
	out.Errors = append([]string{}, a.m.Errors...)
	return out
}

func (a *MetricsAggregator) Reset() {
	a.mu.Lock()
	a.m = domain.Metrics{Errors: []string{}}
	a.mu.Unlock()
}

func (a *MetricsAggregator) Report() domain.MetricsReport {
	m := a.Snapshot()
	return domain.MetricsReport{
		Summary:     m.Summary(),
		Performance: m.Performance(),
		Raw:         m,
	}
}
