package usecase

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

const (
	errorRiskStep = 0.25

	amountRiskLow        = 0.1
	amountRiskMedium     = 0.2
	amountRiskHigh       = 0.3
	amountRiskNonNumeric = 0.7
	amountRiskInvalid    = 0.8

	msgNonNumericAmount = "Non-numeric amount"
	msgInvalidAmount    = "Invalid or zero amount"
	msgInvalidDate      = "Invalid date format"
	msgUnparseableDate  = "Unparseable date"

	flagCurrencyMissing   = "Currency not specified"
	flagIrregularDate     = "Irregular date format"
	flagCorruptDate       = "Corrupt date"
	flagCriticalAnomalies = "Critical anomalies detected"

	dateProbeLength = 10
)

// Tried in order; the first layout that parses wins.
var dateLayouts = []string{"2006-1-2", "2/1/2006", "2006-1", "1/2006"}

// RiskScorer validates extracted fields and composes the risk score.
type RiskScorer struct {
	policy *domain.Policy
}

func NewRiskScorer(policy *domain.Policy) *RiskScorer {
	return &RiskScorer{policy: policy}
}

// Score validates fields, appending to a copy of errs, and returns the
// factor breakdown with the composite score clamped to at most 1.0.
func (s *RiskScorer) Score(fields domain.Fields, errs []string, docType domain.DocumentType) domain.RiskAssessment {
	a := domain.RiskAssessment{
		Errors:          append([]string{}, errs...),
		Anomalies:       []string{},
		ComplianceFlags: []string{},
	}

	s.checkCriticalFields(fields, &a)
	amountRisk := s.checkAmount(fields, &a)
	s.checkDate(fields, &a)

	a.Factors = domain.RiskFactors{
		ValidationErrors: math.Min(float64(len(a.Errors))*errorRiskStep, 1.0),
		DocumentType:     (s.policy.Rule(docType).RiskMultiplier - 1.0) * 2,
		AmountThreshold:  amountRisk,
		DataCompleteness: s.incompleteness(fields),
	}
	a.Score = math.Min(s.policy.Weights.Compose(a.Factors), 1.0)

	s.flagCriticalAnomalies(&a)
	return a
}

func (s *RiskScorer) checkCriticalFields(fields domain.Fields, a *domain.RiskAssessment) {
	for _, name := range s.policy.CriticalFields {
		if fields.Present(name) {
			continue
		}
		msg := fieldLabel(name) + " missing"
		a.Errors = append(a.Errors, msg)
		a.Anomalies = append(a.Anomalies, strings.ToLower(msg))
	}
}

// checkAmount returns the amount-threshold factor and records the
// normalized local amount on a.
func (s *RiskScorer) checkAmount(fields domain.Fields, a *domain.RiskAssessment) float64 {
	if !fields.Present(domain.FieldTotalAmount) {
		// A blank critical amount was already reported as missing.
		if !slices.Contains(s.policy.CriticalFields, domain.FieldTotalAmount) {
			addFinding(a, msgInvalidAmount)
		}
		return amountRiskInvalid
	}

	amount, err := domain.ParseAmount(fields[domain.FieldTotalAmount])
	if err != nil {
		addFinding(a, msgNonNumericAmount)
		return amountRiskNonNumeric
	}
	if amount <= 0 {
		addFinding(a, msgInvalidAmount)
		return amountRiskInvalid
	}

	currency := fields.Currency()
	switch {
	case currency == "":
		a.ComplianceFlags = append(a.ComplianceFlags, flagCurrencyMissing)
	case currency != s.policy.LocalCurrency && currency != s.policy.ReferenceCurrency:
		a.ComplianceFlags = append(a.ComplianceFlags, "Unrecognized currency: "+currency)
	}

	local := s.policy.ToLocal(amount, currency)
	a.NormalizedAmount = local

	switch {
	case local <= s.policy.Local.Supervisor:
		return amountRiskLow
	case local <= s.policy.Local.Manager:
		return amountRiskMedium
	default:
		return amountRiskHigh
	}
}

func (s *RiskScorer) checkDate(fields domain.Fields, a *domain.RiskAssessment) {
	if !fields.Present(domain.FieldDate) {
		return
	}

	raw, isText := fields[domain.FieldDate].(string)
	raw = strings.TrimSpace(raw)
	if !isText || !strings.ContainsFunc(raw, unicode.IsDigit) {
		a.Errors = append(a.Errors, msgUnparseableDate)
		a.ComplianceFlags = append(a.ComplianceFlags, flagCorruptDate)
		return
	}

	probe := raw
	if runes := []rune(raw); len(runes) > dateProbeLength {
		probe = string(runes[:dateProbeLength])
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, probe); err == nil {
			return
		}
	}
	a.Errors = append(a.Errors, msgInvalidDate)
	a.ComplianceFlags = append(a.ComplianceFlags, flagIrregularDate)
}

func (s *RiskScorer) incompleteness(fields domain.Fields) float64 {
	total := len(s.policy.CriticalFields)
	if total == 0 {
		return 0
	}
	present := 0
	for _, name := range s.policy.CriticalFields {
		if fields.Present(name) {
			present++
		}
	}
	return 1.0 - float64(present)/float64(total)
}

func (s *RiskScorer) flagCriticalAnomalies(a *domain.RiskAssessment) {
	for _, anomaly := range a.Anomalies {
		if s.policy.IsCriticalAnomaly(anomaly) {
			a.CriticalAnomaly = true
			a.ComplianceFlags = append(a.ComplianceFlags, flagCriticalAnomalies)
			return
		}
	}
}

func addFinding(a *domain.RiskAssessment, msg string) {
	a.Errors = append(a.Errors, msg)
	a.Anomalies = append(a.Anomalies, strings.ToLower(msg))
}

// fieldLabel turns "invoice_number" into "Invoice number".
func fieldLabel(name string) string {
	label := strings.ReplaceAll(name, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
