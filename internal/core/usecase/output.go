package usecase

import (
	"math"
	"time"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

const scoringMethod = "multifactor_composite"

var processingNodePath = []string{
	"detect_format",
	"extract_data",
	"validate_risk",
	"route_approval",
	"generate_output",
}

// BuildDecisionRecord renders the final state of a routed invoice.
func BuildDecisionRecord(inv *domain.Invoice, policy *domain.Policy, now time.Time) *domain.DecisionRecord {
	score := domain.Round(inv.RiskScore, 3)
	return &domain.DecisionRecord{
		InvoiceID:             inv.ID,
		ContentHash:           inv.ContentHash,
		ProcessingTimestamp:   now.UTC(),
		ProcessingTimeSeconds: domain.Round(now.Sub(inv.StartedAt).Seconds(), 3),
		Status:                domain.StatusCompleted,
		Metadata: domain.DocumentMetadata{
			Type:      inv.DocumentType,
			Language:  inv.Language,
			RiskScore: score,
		},
		Fields: inv.Fields,
		Validation: domain.ValidationResult{
			Errors:                 inv.ValidationErrors,
			IsValid:                len(inv.ValidationErrors) == 0,
			CriticalFieldsComplete: criticalFieldsComplete(inv.Fields, policy),
		},
		Risk: domain.RiskAnalytics{
			Breakdown:        inv.RiskFactors,
			Anomalies:        inv.Anomalies,
			ComplianceFlags:  inv.ComplianceFlags,
			TypeRulesApplied: policy.HasRule(inv.DocumentType),
			CriticalAnomaly:  inv.CriticalAnomaly,
		},
		Approval: domain.ApprovalResult{
			Decision:             inv.Decision,
			Reason:               inv.DecisionReason,
			RequiresHumanReview:  inv.Decision != domain.DecisionAutoApproved,
			RiskLevel:            RiskLevelFor(inv.RiskScore),
			MinimumApprovalLevel: policy.Rule(inv.DocumentType).MinApprovalLevel,
			Escalated:            inv.Escalated,
			RoutingFault:         inv.RoutingFault,
		},
		Integration: domain.IntegrationFlags{
			PaymentSystem:   inv.Decision == domain.DecisionAutoApproved,
			ERPSystem:       len(inv.ValidationErrors) == 0,
			ReportingSystem: true,
			ComplianceCheck: inv.RiskScore < rejectScore && len(inv.ComplianceFlags) == 0,
		},
		Audit: domain.AuditTrail{
			APICallsUsed:     inv.APICalls,
			NodePath:         processingNodePath,
			PolicyVersion:    policy.Version,
			ScoringMethod:    scoringMethod,
			DocumentTypeSeen: inv.DocumentType,
			LanguageSeen:     inv.Language,
		},
	}
}

// BuildFailureRecord is emitted for a document that never reached a
// decision. Only reporting may consume it.
func BuildFailureRecord(input domain.InvoiceInput, cause error, startedAt, now time.Time) *domain.DecisionRecord {
	return &domain.DecisionRecord{
		InvoiceID:             input.ID,
		ContentHash:           Fingerprint(input.Content),
		ProcessingTimestamp:   now.UTC(),
		ProcessingTimeSeconds: domain.Round(math.Max(now.Sub(startedAt).Seconds(), 0), 3),
		Status:                domain.StatusFailed,
		Error:                 "Critical processing error: " + cause.Error(),
		Fields:                domain.Fields{},
		Validation:            domain.ValidationResult{Errors: []string{}},
		Risk: domain.RiskAnalytics{
			Anomalies:        []string{},
			ComplianceFlags:  []string{},
			ProcessingFailed: true,
		},
		Integration: domain.IntegrationFlags{ReportingSystem: true},
		Audit: domain.AuditTrail{
			NodePath:      []string{},
			ScoringMethod: scoringMethod,
		},
	}
}

func RiskLevelFor(score float64) domain.RiskLevel {
	switch {
	case score > 0.6:
		return domain.RiskLevelHigh
	case score > 0.3:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

func criticalFieldsComplete(fields domain.Fields, policy *domain.Policy) bool {
	for _, name := range policy.CriticalFields {
		if !fields.Present(name) {
			return false
		}
	}
	return true
}
