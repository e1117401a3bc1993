package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks intake messages consumed from the queue.
type WorkerMetrics struct {
	registry *prometheus.Registry

	messageTotal    *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	messageInFlight prometheus.Gauge
	sinkErrors      *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	messageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "invoice_messages_total",
			Help:      "Total consumed invoice messages by status.",
		},
		[]string{"service", "status"},
	)
	messageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "invoice_message_duration_seconds",
			Help:      "Invoice message handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	messageInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "invoice_messages_in_flight",
			Help:      "Number of invoice messages being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	sinkErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sink_errors_total",
			Help:      "Decision records that could not be persisted.",
		},
		[]string{"service"},
	)

	registry.MustRegister(messageTotal, messageDuration, messageInFlight, sinkErrors)

	return &WorkerMetrics{
		registry:        registry,
		messageTotal:    messageTotal,
		messageDuration: messageDuration,
		messageInFlight: messageInFlight,
		sinkErrors:      sinkErrors,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartMessage() {
	m.messageInFlight.Inc()
}

func (m *WorkerMetrics) FinishMessage(service string, duration time.Duration, err error) {
	m.messageInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.messageTotal.WithLabelValues(service, status).Inc()
	m.messageDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordSinkError(service string) {
	m.sinkErrors.WithLabelValues(service).Inc()
}
