package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

const namespace = "invoice_router"

// PipelineMetrics mirrors routing outcomes and breaker states into
// Prometheus. It implements ports.OutcomeObserver and
// resilience.StateObserver.
type PipelineMetrics struct {
	service string

	decisions       *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	routingFaults   prometheus.Counter
	criticalDocs    prometheus.Counter
	failures        prometheus.Counter
	riskScore       *prometheus.HistogramVec
	processDuration *prometheus.HistogramVec
	apiCalls        prometheus.Counter
	breakerState    *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	constLabels := prometheus.Labels{"service": service}

	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Routed documents by document type and decision.",
		},
		[]string{"service", "document_type", "decision"},
	)
	escalations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_type_escalations_total",
			Help:      "Documents escalated to manager review by a document type rule.",
		},
		[]string{"service", "document_type"},
	)
	routingFaults := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "pipeline",
		Name:        "routing_faults_total",
		Help:        "Documents whose amount could not be normalized while routing.",
		ConstLabels: constLabels,
	})
	criticalDocs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "pipeline",
		Name:        "critical_anomalies_total",
		Help:        "Documents with at least one critical anomaly.",
		ConstLabels: constLabels,
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "pipeline",
		Name:        "hard_failures_total",
		Help:        "Documents that could not be processed at all.",
		ConstLabels: constLabels,
	})
	riskScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "risk_score",
			Help:      "Distribution of final risk scores.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service", "document_type"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "End to end document processing time by decision.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "decision"},
	)
	apiCalls := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "pipeline",
		Name:        "extraction_calls_total",
		Help:        "Extraction service calls made.",
		ConstLabels: constLabels,
	})
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(
		decisions,
		escalations,
		routingFaults,
		criticalDocs,
		failures,
		riskScore,
		processDuration,
		apiCalls,
		breakerState,
	)

	return &PipelineMetrics{
		service:         service,
		decisions:       decisions,
		escalations:     escalations,
		routingFaults:   routingFaults,
		criticalDocs:    criticalDocs,
		failures:        failures,
		riskScore:       riskScore,
		processDuration: processDuration,
		apiCalls:        apiCalls,
		breakerState:    breakerState,
	}
}

func (m *PipelineMetrics) ObserveOutcome(o domain.Outcome) {
	docType := string(o.DocumentType)
	if docType == "" {
		docType = string(domain.DocumentTypeUnknown)
	}

	m.decisions.WithLabelValues(m.service, docType, string(o.Decision)).Inc()
	m.riskScore.WithLabelValues(m.service, docType).Observe(o.RiskScore)
	m.processDuration.WithLabelValues(m.service, string(o.Decision)).Observe(o.Duration.Seconds())
	if o.APICalls > 0 {
		m.apiCalls.Add(float64(o.APICalls))
	}
	if o.Escalated {
		m.escalations.WithLabelValues(m.service, docType).Inc()
	}
	if o.RoutingFault {
		m.routingFaults.Inc()
	}
	if o.CriticalAnomaly {
		m.criticalDocs.Inc()
	}
}

func (m *PipelineMetrics) ObserveFailure(duration time.Duration) {
	m.failures.Inc()
	m.processDuration.WithLabelValues(m.service, "failed").Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveBreakerState(operation string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
