package domain

import "time"

// DecisionRecord is the audit-ready output handed to downstream systems.
type DecisionRecord struct {
	InvoiceID             int              `json:"invoice_id"`
	ContentHash           string           `json:"content_hash"`
	ProcessingTimestamp   time.Time        `json:"processing_timestamp"`
	ProcessingTimeSeconds float64          `json:"processing_time_seconds"`
	Status                ProcessingStatus `json:"processing_status"`
	Error                 string           `json:"error,omitempty"`

	Metadata    DocumentMetadata `json:"document_metadata"`
	Fields      Fields           `json:"extracted_data"`
	Validation  ValidationResult `json:"validation"`
	Risk        RiskAnalytics    `json:"enhanced_risk_analytics"`
	Approval    ApprovalResult   `json:"approval"`
	Integration IntegrationFlags `json:"integration_ready"`
	Audit       AuditTrail       `json:"audit_trail"`
}

type DocumentMetadata struct {
	Type      DocumentType `json:"type"`
	Language  Language     `json:"language"`
	RiskScore float64      `json:"risk_score"`
}

type ValidationResult struct {
	Errors                 []string `json:"errors"`
	IsValid                bool     `json:"is_valid"`
	CriticalFieldsComplete bool     `json:"critical_fields_complete"`
}

type RiskAnalytics struct {
	Breakdown        RiskFactors `json:"risk_score_breakdown"`
	Anomalies        []string    `json:"anomalies_detected"`
	ComplianceFlags  []string    `json:"compliance_flags"`
	TypeRulesApplied bool        `json:"document_type_rules_applied"`
	CriticalAnomaly  bool        `json:"critical_anomaly"`
	ProcessingFailed bool        `json:"processing_failed,omitempty"`
}

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

type ApprovalResult struct {
	Decision             Decision  `json:"decision"`
	Reason               string    `json:"reason"`
	RequiresHumanReview  bool      `json:"requires_human_review"`
	RiskLevel            RiskLevel `json:"risk_level"`
	MinimumApprovalLevel Decision  `json:"minimum_approval_level"`
	Escalated            bool      `json:"escalated"`
	RoutingFault         bool      `json:"routing_fault"`
}

// IntegrationFlags tell downstream systems whether they may consume the
// record.
type IntegrationFlags struct {
	PaymentSystem   bool `json:"payment_system"`
	ERPSystem       bool `json:"erp_system"`
	ReportingSystem bool `json:"reporting_system"`
	ComplianceCheck bool `json:"compliance_check"`
}

type AuditTrail struct {
	APICallsUsed     int          `json:"api_calls_used"`
	NodePath         []string     `json:"processing_node_path"`
	PolicyVersion    string       `json:"compliance_version"`
	ScoringMethod    string       `json:"risk_scoring_method"`
	DocumentTypeSeen DocumentType `json:"document_type_detected"`
	LanguageSeen     Language     `json:"language_detected"`
}
