// Package policyfile loads an approval policy from YAML.
package policyfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

// Every structural value is a pointer so that an absent key can be told
// apart from an explicit zero.
type file struct {
	Version    *string `yaml:"version"`
	Currencies *struct {
		Local        *string  `yaml:"local"`
		Reference    *string  `yaml:"reference"`
		ExchangeRate *float64 `yaml:"exchange_rate"`
	} `yaml:"currencies"`
	Thresholds *struct {
		Local     *thresholds `yaml:"local"`
		Reference *thresholds `yaml:"reference"`
	} `yaml:"thresholds"`
	CriticalFields []string `yaml:"critical_fields"`
	DocumentTypes  *struct {
		CreditNote    *typeRule `yaml:"credit_note"`
		Email         *typeRule `yaml:"email"`
		JSON          *typeRule `yaml:"json"`
		FormalInvoice *typeRule `yaml:"formal_invoice"`
		Fallback      *typeRule `yaml:"fallback"`
	} `yaml:"document_types"`
	Weights *struct {
		ValidationErrors *float64 `yaml:"validation_errors"`
		DocumentType     *float64 `yaml:"document_type"`
		AmountThreshold  *float64 `yaml:"amount_threshold"`
		DataCompleteness *float64 `yaml:"data_completeness"`
	} `yaml:"weights"`
	CriticalAnomalies []string `yaml:"critical_anomalies"`
}

type thresholds struct {
	AutoApproval *float64 `yaml:"auto_approval"`
	Supervisor   *float64 `yaml:"supervisor"`
	Manager      *float64 `yaml:"manager"`
}

type typeRule struct {
	MaxAutoApproval  *float64 `yaml:"max_auto_approval"`
	MinApprovalLevel *string  `yaml:"min_approval_level"`
	RiskMultiplier   *float64 `yaml:"risk_multiplier"`
}

// Load reads and validates a policy file.
func Load(path string) (*domain.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML policy. Unknown keys and missing structural fields
// are errors; nothing is defaulted.
func Parse(data []byte) (*domain.Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, domain.WrapError(domain.ErrPolicyInvalid, "decode policy yaml", err)
	}

	m := &missing{}
	p := domain.Policy{
		Version:           m.str("version", f.Version),
		CriticalFields:    m.list("critical_fields", f.CriticalFields),
		CriticalAnomalies: m.list("critical_anomalies", f.CriticalAnomalies),
	}

	if m.present("currencies", f.Currencies != nil) {
		p.LocalCurrency = m.str("currencies.local", f.Currencies.Local)
		p.ReferenceCurrency = m.str("currencies.reference", f.Currencies.Reference)
		p.ExchangeRate = m.num("currencies.exchange_rate", f.Currencies.ExchangeRate)
	}
	if m.present("thresholds", f.Thresholds != nil) {
		p.Local = m.thresholds("thresholds.local", f.Thresholds.Local)
		p.Reference = m.thresholds("thresholds.reference", f.Thresholds.Reference)
	}
	if m.present("document_types", f.DocumentTypes != nil) {
		p.CreditNote = m.rule("document_types.credit_note", f.DocumentTypes.CreditNote)
		p.Email = m.rule("document_types.email", f.DocumentTypes.Email)
		p.JSON = m.rule("document_types.json", f.DocumentTypes.JSON)
		p.FormalInvoice = m.rule("document_types.formal_invoice", f.DocumentTypes.FormalInvoice)
		p.Fallback = m.rule("document_types.fallback", f.DocumentTypes.Fallback)
	}
	if m.present("weights", f.Weights != nil) {
		p.Weights = domain.RiskWeights{
			ValidationErrors: m.num("weights.validation_errors", f.Weights.ValidationErrors),
			DocumentType:     m.num("weights.document_type", f.Weights.DocumentType),
			AmountThreshold:  m.num("weights.amount_threshold", f.Weights.AmountThreshold),
			DataCompleteness: m.num("weights.data_completeness", f.Weights.DataCompleteness),
		}
	}

	if len(m.paths) > 0 {
		return nil, domain.WrapError(domain.ErrPolicyInvalid, "load policy",
			errors.New("missing required fields: "+strings.Join(m.paths, ", ")))
	}
	return domain.NewPolicy(p)
}

type missing struct {
	paths []string
}

func (m *missing) present(path string, ok bool) bool {
	if !ok {
		m.paths = append(m.paths, path)
	}
	return ok
}

func (m *missing) str(path string, v *string) string {
	if !m.present(path, v != nil) {
		return ""
	}
	return *v
}

func (m *missing) num(path string, v *float64) float64 {
	if !m.present(path, v != nil) {
		return 0
	}
	return *v
}

func (m *missing) list(path string, v []string) []string {
	m.present(path, len(v) > 0)
	return v
}

func (m *missing) thresholds(path string, t *thresholds) domain.Thresholds {
	if !m.present(path, t != nil) {
		return domain.Thresholds{}
	}
	return domain.Thresholds{
		AutoApproval: m.num(path+".auto_approval", t.AutoApproval),
		Supervisor:   m.num(path+".supervisor", t.Supervisor),
		Manager:      m.num(path+".manager", t.Manager),
	}
}

func (m *missing) rule(path string, r *typeRule) domain.TypeRule {
	if !m.present(path, r != nil) {
		return domain.TypeRule{}
	}
	return domain.TypeRule{
		MaxAutoApproval:  m.num(path+".max_auto_approval", r.MaxAutoApproval),
		MinApprovalLevel: domain.Decision(m.str(path+".min_approval_level", r.MinApprovalLevel)),
		RiskMultiplier:   m.num(path+".risk_multiplier", r.RiskMultiplier),
	}
}
