package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type DocumentType string

const (
	DocumentTypeEmail         DocumentType = "email"
	DocumentTypeJSON          DocumentType = "json"
	DocumentTypeCreditNote    DocumentType = "credit_note"
	DocumentTypeFormalInvoice DocumentType = "formal_invoice"
	DocumentTypeUnknown       DocumentType = "unknown"
)

type Language string

const (
	LanguageSpanish    Language = "spanish"
	LanguageEnglish    Language = "english"
	LanguagePortuguese Language = "portuguese"
	LanguageUnknown    Language = "unknown"
)

type ProcessingStatus string

const (
	StatusStarted          ProcessingStatus = "started"
	StatusFormatDetected   ProcessingStatus = "format_detected"
	StatusDataExtracted    ProcessingStatus = "data_extracted"
	StatusExtractionFailed ProcessingStatus = "extraction_failed"
	StatusValidated        ProcessingStatus = "validated"
	StatusValidationFailed ProcessingStatus = "validation_failed"
	StatusRouted           ProcessingStatus = "routed"
	StatusCompleted        ProcessingStatus = "completed"
	StatusFailed           ProcessingStatus = "failed"
)

// Extracted field vocabulary.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldVendor        = "vendor"
	FieldTotalAmount   = "total_amount"
	FieldCurrency      = "currency"
	FieldDate          = "date"
)

// Fields is the field map returned by the extraction service. Values are
// strings, numbers or nil.
type Fields map[string]any

// Text returns the trimmed textual form of a field, or "" when the field is
// absent or nil.
func (f Fields) Text(name string) string {
	v, ok := f[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Present reports whether the field is non-empty after trimming.
func (f Fields) Present(name string) bool {
	return f.Text(name) != ""
}

func (f Fields) Currency() string {
	return strings.ToUpper(f.Text(FieldCurrency))
}

var errNotNumeric = errors.New("amount is not numeric")

// ParseAmount reads a monetary value, accepting numbers and numeric-looking
// strings with thousands separators and currency symbols.
func ParseAmount(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errNotNumeric, t.String())
		}
		return finite(n)
	case string:
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case ',', '$', '€', '£', ' ', '\u00a0':
				return -1
			default:
				return r
			}
		}, t)
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errNotNumeric, t)
		}
		return finite(n)
	case nil:
		return 0, fmt.Errorf("%w: empty value", errNotNumeric)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", errNotNumeric, v)
	}
}

func finite(n float64) (float64, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %v", errNotNumeric, n)
	}
	return n, nil
}

// Classification is the classifier's verdict for one raw text.
type Classification struct {
	DocumentType DocumentType `json:"document_type"`
	Language     Language     `json:"language"`
	ContentHash  string       `json:"content_hash"`
	Cached       bool         `json:"cached"`
}

// RiskFactors holds the four named sub-scores of the composite risk score.
type RiskFactors struct {
	ValidationErrors float64 `json:"validation_errors"`
	DocumentType     float64 `json:"document_type"`
	AmountThreshold  float64 `json:"amount_threshold"`
	DataCompleteness float64 `json:"data_completeness"`
}

// RiskAssessment is the output of the risk scorer.
type RiskAssessment struct {
	Score            float64
	Factors          RiskFactors
	Errors           []string
	Anomalies        []string
	ComplianceFlags  []string
	CriticalAnomaly  bool
	NormalizedAmount float64
}

// Invoice is the per-document working state threaded through the pipeline.
// It is owned by exactly one pipeline invocation.
type Invoice struct {
	ID               int
	RawContent       string
	ContentHash      string
	DocumentType     DocumentType
	Language         Language
	Fields           Fields
	ValidationErrors []string
	RiskScore        float64
	RiskFactors      RiskFactors
	Anomalies        []string
	ComplianceFlags  []string
	Decision         Decision
	DecisionReason   string
	Status           ProcessingStatus
	StartedAt        time.Time

	Escalated       bool
	RoutingFault    bool
	CriticalAnomaly bool
	APICalls        int
	ExtractionError string
}

func NewInvoice(id int, content string, startedAt time.Time) *Invoice {
	return &Invoice{
		ID:               id,
		RawContent:       content,
		Fields:           Fields{},
		ValidationErrors: []string{},
		Anomalies:        []string{},
		ComplianceFlags:  []string{},
		Status:           StatusStarted,
		StartedAt:        startedAt,
	}
}

// InvoiceInput is one raw document handed to the pipeline.
type InvoiceInput struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}
