package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const DefaultPolicyVersion = "2.0"

// Thresholds holds the three escalation ceilings in one currency. Anything
// above Manager belongs to the executive tier.
type Thresholds struct {
	AutoApproval float64 `json:"auto_approval" validate:"gt=0"`
	Supervisor   float64 `json:"supervisor" validate:"gtfield=AutoApproval"`
	Manager      float64 `json:"manager" validate:"gtfield=Supervisor"`
}

// TypeRule is the per-document-type override.
type TypeRule struct {
	MaxAutoApproval  float64  `json:"max_auto_approval" validate:"gte=0"`
	MinApprovalLevel Decision `json:"min_approval_level" validate:"required,decision"`
	RiskMultiplier   float64  `json:"risk_multiplier" validate:"gte=1"`
}

// RiskWeights are the fixed weights of the four risk factors.
type RiskWeights struct {
	ValidationErrors float64 `json:"validation_errors" validate:"gt=0,lte=1"`
	DocumentType     float64 `json:"document_type" validate:"gt=0,lte=1"`
	AmountThreshold  float64 `json:"amount_threshold" validate:"gt=0,lte=1"`
	DataCompleteness float64 `json:"data_completeness" validate:"gt=0,lte=1"`
}

func (w RiskWeights) Sum() float64 {
	return w.ValidationErrors + w.DocumentType + w.AmountThreshold + w.DataCompleteness
}

// Compose returns the weighted sum of the factors, without clamping.
func (w RiskWeights) Compose(f RiskFactors) float64 {
	return f.ValidationErrors*w.ValidationErrors +
		f.DocumentType*w.DocumentType +
		f.AmountThreshold*w.AmountThreshold +
		f.DataCompleteness*w.DataCompleteness
}

// Policy is the static, versioned rule table. It is read-only once built by
// NewPolicy and safe for concurrent use.
type Policy struct {
	Version string `json:"version" validate:"required"`

	LocalCurrency     string     `json:"local_currency" validate:"required,len=3"`
	ReferenceCurrency string     `json:"reference_currency" validate:"required,len=3,nefield=LocalCurrency"`
	Local             Thresholds `json:"local"`
	Reference         Thresholds `json:"reference"`
	// ExchangeRate is local-currency units per reference-currency unit.
	ExchangeRate float64 `json:"exchange_rate" validate:"gt=0"`

	CriticalFields []string `json:"critical_fields" validate:"required,min=1,dive,required"`

	CreditNote    TypeRule `json:"credit_note"`
	Email         TypeRule `json:"email"`
	JSON          TypeRule `json:"json"`
	FormalInvoice TypeRule `json:"formal_invoice"`
	Fallback      TypeRule `json:"fallback"`

	Weights           RiskWeights `json:"weights"`
	CriticalAnomalies []string    `json:"critical_anomalies" validate:"required,min=1,dive,required"`
}

// DefaultPolicy returns the built-in COP/USD rule table.
func DefaultPolicy() *Policy {
	const autoCOP = 18_417_000
	p, err := NewPolicy(Policy{
		Version:           DefaultPolicyVersion,
		LocalCurrency:     "COP",
		ReferenceCurrency: "USD",
		Local: Thresholds{
			AutoApproval: autoCOP,
			Supervisor:   47_329_800,
			Manager:      190_680_000,
		},
		Reference: Thresholds{
			AutoApproval: 4_385,
			Supervisor:   11_269,
			Manager:      45_400,
		},
		ExchangeRate:   4200,
		CriticalFields: []string{FieldInvoiceNumber, FieldVendor, FieldTotalAmount},
		CreditNote: TypeRule{
			MaxAutoApproval:  0,
			MinApprovalLevel: DecisionManagerReview,
			RiskMultiplier:   1.3,
		},
		Email: TypeRule{
			MaxAutoApproval:  autoCOP * 0.7,
			MinApprovalLevel: DecisionSupervisorReview,
			RiskMultiplier:   1.2,
		},
		JSON: TypeRule{
			MaxAutoApproval:  autoCOP * 0.8,
			MinApprovalLevel: DecisionSupervisorReview,
			RiskMultiplier:   1.1,
		},
		FormalInvoice: TypeRule{
			MaxAutoApproval:  autoCOP,
			MinApprovalLevel: DecisionAutoApproved,
			RiskMultiplier:   1.0,
		},
		Fallback: TypeRule{
			MaxAutoApproval:  autoCOP * 0.5,
			MinApprovalLevel: DecisionManagerReview,
			RiskMultiplier:   1.2,
		},
		Weights: RiskWeights{
			ValidationErrors: 0.4,
			DocumentType:     0.2,
			AmountThreshold:  0.2,
			DataCompleteness: 0.2,
		},
		CriticalAnomalies: []string{
			"invoice number missing",
			"vendor missing",
			"total amount missing",
			"invalid or zero amount",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return p
}

// NewPolicy validates the table and returns an immutable copy of it.
func NewPolicy(p Policy) (*Policy, error) {
	if err := policyValidator().Struct(p); err != nil {
		return nil, WrapError(ErrPolicyInvalid, "validate policy", err)
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1.0) > 1e-9 {
		return nil, WrapError(ErrPolicyInvalid, "validate policy", fmt.Errorf("risk weights sum to %.4f, want 1.0", sum))
	}

	out := p
	out.LocalCurrency = strings.ToUpper(p.LocalCurrency)
	out.ReferenceCurrency = strings.ToUpper(p.ReferenceCurrency)
	out.CriticalFields = append([]string(nil), p.CriticalFields...)
	out.CriticalAnomalies = make([]string, 0, len(p.CriticalAnomalies))
	for _, phrase := range p.CriticalAnomalies {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			return nil, WrapError(ErrPolicyInvalid, "validate policy", errors.New("blank critical anomaly phrase"))
		}
		out.CriticalAnomalies = append(out.CriticalAnomalies, phrase)
	}
	return &out, nil
}

// Rule returns the override for a document type. Types without a dedicated
// rule get the fallback.
func (p *Policy) Rule(t DocumentType) TypeRule {
	switch t {
	case DocumentTypeCreditNote:
		return p.CreditNote
	case DocumentTypeEmail:
		return p.Email
	case DocumentTypeJSON:
		return p.JSON
	case DocumentTypeFormalInvoice:
		return p.FormalInvoice
	default:
		return p.Fallback
	}
}

// HasRule reports whether t has a dedicated override.
func (p *Policy) HasRule(t DocumentType) bool {
	switch t {
	case DocumentTypeCreditNote, DocumentTypeEmail, DocumentTypeJSON, DocumentTypeFormalInvoice:
		return true
	default:
		return false
	}
}

// IsCriticalAnomaly matches text against the critical phrases,
// case-insensitively.
func (p *Policy) IsCriticalAnomaly(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range p.CriticalAnomalies {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ToLocal converts an amount in currency to local units. Unknown currencies
// are taken as local.
func (p *Policy) ToLocal(amount float64, currency string) float64 {
	if strings.EqualFold(currency, p.ReferenceCurrency) {
		return amount * p.ExchangeRate
	}
	return amount
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func policyValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("decision", func(fl validator.FieldLevel) bool {
			return Decision(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}
