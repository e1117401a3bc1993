package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/invoice-router/internal/core/usecase"
)

func writeSummary(w io.Writer, result *usecase.BatchResult) {
	raw := result.Report.Raw
	summary := result.Report.Summary
	perf := result.Report.Performance
	rule := strings.Repeat("=", 70)

	fmt.Fprintf(w, "\n%s\nRISK ANALYTICS SUMMARY (run %s)\n%s\n", rule, result.RunID, rule)
	fmt.Fprintf(w, "Total processed: %d\n", raw.TotalProcessed)
	fmt.Fprintf(w, "Auto-approved: %d (%.1f%%)\n", raw.AutoApproved, summary.AutoApprovedPct)
	fmt.Fprintf(w, "Supervision: %d (%.1f%%)\n", raw.SupervisorReview, summary.SupervisorReviewPct)
	fmt.Fprintf(w, "Management: %d (%.1f%%)\n", raw.ManagerReview, summary.ManagerReviewPct)
	fmt.Fprintf(w, "Executive: %d (%.1f%%)\n", raw.ExecutiveReview, summary.ExecutiveReviewPct)
	fmt.Fprintf(w, "Rejected: %d (%.1f%%)\n", raw.Rejected, summary.RejectedPct)
	fmt.Fprintf(w, "Failed: %d\n", raw.HardFailures)

	fmt.Fprintf(w, "\nCOMPLIANCE:\n")
	fmt.Fprintf(w, "   Validation errors: %d\n", raw.ValidationErrors)
	fmt.Fprintf(w, "   Critical anomalies: %d\n", raw.CriticalAnomalies)
	fmt.Fprintf(w, "   Document escalations: %d\n", raw.DocumentTypeEscalation)
	fmt.Fprintf(w, "   High-risk scores (>0.7): %d\n", raw.HighRiskScores)
	fmt.Fprintf(w, "   Routing faults: %d\n", raw.RoutingFaults)

	fmt.Fprintf(w, "\nPERFORMANCE:\n")
	fmt.Fprintf(w, "   Average processing time: %.3fs\n", perf.AvgProcessingSeconds)
	fmt.Fprintf(w, "   Throughput: %.1f invoices/min\n", perf.ThroughputPerMinute)
	fmt.Fprintf(w, "   API calls: %d\n", raw.APICallsUsed)
	fmt.Fprintf(w, "   Estimated cost: $%.2f USD\n", perf.EstimatedCostUSD)
	fmt.Fprintf(w, "   Error rate: %.1f%%\n", perf.ErrorRatePct)
	if result.SinkErrors > 0 {
		fmt.Fprintf(w, "   Sink errors: %d\n", result.SinkErrors)
	}
}
