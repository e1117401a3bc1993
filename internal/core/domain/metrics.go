package domain

import (
	"math"
	"time"
)

const costPerAPICallUSD = 0.015

// Metrics is a point-in-time copy of the aggregated counters.
type Metrics struct {
	TotalProcessed   int `json:"total_processed"`
	AutoApproved     int `json:"auto_approved"`
	SupervisorReview int `json:"supervisor_review"`
	ManagerReview    int `json:"manager_review"`
	ExecutiveReview  int `json:"executive_review"`
	Rejected         int `json:"rejected"`
	HardFailures     int `json:"hard_failures"`

	ValidationErrors       int `json:"validation_errors"`
	CriticalAnomalies      int `json:"critical_anomalies"`
	DocumentTypeEscalation int `json:"document_type_escalations"`
	HighRiskScores         int `json:"high_risk_scores"`
	RoutingFaults          int `json:"routing_faults"`

	ProcessingTimeTotal time.Duration `json:"processing_time_total_ns"`
	APICallsUsed        int           `json:"api_calls_used"`

	// ErrorCount keeps counting after Errors stops growing at its cap.
	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors"`
}

// DecisionTotal is the sum of the five decision buckets.
func (m Metrics) DecisionTotal() int {
	return m.AutoApproved + m.SupervisorReview + m.ManagerReview + m.ExecutiveReview + m.Rejected
}

// ApprovalSummary is the share of each decision bucket in percent.
type ApprovalSummary struct {
	AutoApprovedPct     float64 `json:"auto_approved_pct"`
	SupervisorReviewPct float64 `json:"supervisor_review_pct"`
	ManagerReviewPct    float64 `json:"manager_review_pct"`
	ExecutiveReviewPct  float64 `json:"executive_review_pct"`
	RejectedPct         float64 `json:"rejected_pct"`
}

type PerformanceStats struct {
	AvgProcessingSeconds float64 `json:"avg_processing_time"`
	ThroughputPerMinute  float64 `json:"throughput_per_minute"`
	EstimatedCostUSD     float64 `json:"estimated_cost_usd"`
	ErrorRatePct         float64 `json:"error_rate_pct"`
}

// MetricsReport bundles everything exposed to operators.
type MetricsReport struct {
	Summary     ApprovalSummary  `json:"summary"`
	Performance PerformanceStats `json:"performance"`
	Raw         Metrics          `json:"raw_metrics"`
}

func (m Metrics) Summary() ApprovalSummary {
	if m.TotalProcessed == 0 {
		return ApprovalSummary{}
	}
	return ApprovalSummary{
		AutoApprovedPct:     percent(m.AutoApproved, m.TotalProcessed),
		SupervisorReviewPct: percent(m.SupervisorReview, m.TotalProcessed),
		ManagerReviewPct:    percent(m.ManagerReview, m.TotalProcessed),
		ExecutiveReviewPct:  percent(m.ExecutiveReview, m.TotalProcessed),
		RejectedPct:         percent(m.Rejected, m.TotalProcessed),
	}
}

func (m Metrics) Performance() PerformanceStats {
	if m.TotalProcessed == 0 {
		return PerformanceStats{}
	}
	seconds := m.ProcessingTimeTotal.Seconds()
	stats := PerformanceStats{
		AvgProcessingSeconds: Round(seconds/float64(m.TotalProcessed), 3),
		EstimatedCostUSD:     Round(float64(m.APICallsUsed)*costPerAPICallUSD, 2),
		ErrorRatePct:         percent(m.ErrorCount, m.TotalProcessed),
	}
	if seconds > 0 {
		stats.ThroughputPerMinute = Round(float64(m.TotalProcessed)/(seconds/60), 1)
	}
	return stats
}

func percent(part, total int) float64 {
	return Round(float64(part)/float64(total)*100, 1)
}

// Round rounds v half away from zero to the given decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
