package usecase

import (
	"math"
	"slices"
	"testing"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

func completeFields() domain.Fields {
	return domain.Fields{
		domain.FieldInvoiceNumber: "F-1001",
		domain.FieldVendor:        "Andes SAS",
		domain.FieldTotalAmount:   "10,000,000",
		domain.FieldCurrency:      "COP",
		domain.FieldDate:          "2024-03-01",
	}
}

func TestScoreCleanFormalInvoice(t *testing.T) {
	s := NewRiskScorer(domain.DefaultPolicy())

	a := s.Score(completeFields(), nil, domain.DocumentTypeFormalInvoice)
	if len(a.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", a.Errors)
	}
	if len(a.ComplianceFlags) != 0 {
		t.Fatalf("expected no flags, got %v", a.ComplianceFlags)
	}
	if a.Factors.AmountThreshold != 0.1 {
		t.Fatalf("expected low amount factor, got %v", a.Factors.AmountThreshold)
	}
	if a.Factors.DocumentType != 0 {
		t.Fatalf("expected zero type factor for formal invoice, got %v", a.Factors.DocumentType)
	}
	if math.Abs(a.Score-0.02) > 1e-9 {
		t.Fatalf("expected score 0.02, got %v", a.Score)
	}
	if a.NormalizedAmount != 10_000_000 {
		t.Fatalf("expected normalized amount, got %v", a.NormalizedAmount)
	}
}

func TestScoreMissingVendorAndAmount(t *testing.T) {
	s := NewRiskScorer(domain.DefaultPolicy())
	fields := domain.Fields{domain.FieldInvoiceNumber: "F-1", domain.FieldVendor: "  "}

	a := s.Score(fields, nil, domain.DocumentTypeFormalInvoice)
	if len(a.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", a.Errors)
	}
	if len(a.Anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %v", a.Anomalies)
	}
	if a.Errors[0] != "Vendor missing" || a.Errors[1] != "Total amount missing" {
		t.Fatalf("unexpected errors: %v", a.Errors)
	}
	if math.Abs(a.Factors.DataCompleteness-2.0/3.0) > 1e-9 {
		t.Fatalf("expected completeness factor 2/3, got %v", a.Factors.DataCompleteness)
	}
	if a.Factors.AmountThreshold != amountRiskInvalid {
		t.Fatalf("expected invalid amount factor, got %v", a.Factors.AmountThreshold)
	}
	if !a.CriticalAnomaly {
		t.Fatalf("expected critical anomaly")
	}
	count := 0
	for _, f := range a.ComplianceFlags {
		if f == flagCriticalAnomalies {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one critical flag, got %v", a.ComplianceFlags)
	}
}

func TestScoreAmountFindings(t *testing.T) {
	cases := []struct {
		name       string
		amount     any
		wantErr    string
		wantFactor float64
	}{
		{name: "non numeric", amount: "approx. one million", wantErr: msgNonNumericAmount, wantFactor: amountRiskNonNumeric},
		{name: "zero", amount: "0", wantErr: msgInvalidAmount, wantFactor: amountRiskInvalid},
		{name: "negative", amount: -5.0, wantErr: msgInvalidAmount, wantFactor: amountRiskInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := completeFields()
			fields[domain.FieldTotalAmount] = tc.amount

			a := NewRiskScorer(domain.DefaultPolicy()).Score(fields, nil, domain.DocumentTypeFormalInvoice)
			if !slices.Contains(a.Errors, tc.wantErr) {
				t.Fatalf("expected %q in %v", tc.wantErr, a.Errors)
			}
			if a.Factors.AmountThreshold != tc.wantFactor {
				t.Fatalf("expected factor %v, got %v", tc.wantFactor, a.Factors.AmountThreshold)
			}
		})
	}
}

func TestScoreAmountTiersUseLocalCurrency(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     float64
	}{
		{"40000000", "COP", amountRiskLow},
		{"100000000", "COP", amountRiskMedium},
		{"200000000", "COP", amountRiskHigh},
		{"20000", "USD", amountRiskMedium},
		{"50000", "USD", amountRiskHigh},
	}

	s := NewRiskScorer(domain.DefaultPolicy())
	for _, tc := range cases {
		fields := completeFields()
		fields[domain.FieldTotalAmount] = tc.amount
		fields[domain.FieldCurrency] = tc.currency

		a := s.Score(fields, nil, domain.DocumentTypeFormalInvoice)
		if a.Factors.AmountThreshold != tc.want {
			t.Fatalf("%s %s: expected factor %v, got %v", tc.amount, tc.currency, tc.want, a.Factors.AmountThreshold)
		}
	}
}

func TestScoreCurrencyFlags(t *testing.T) {
	s := NewRiskScorer(domain.DefaultPolicy())

	fields := completeFields()
	delete(fields, domain.FieldCurrency)
	a := s.Score(fields, nil, domain.DocumentTypeFormalInvoice)
	if !slices.Contains(a.ComplianceFlags, flagCurrencyMissing) {
		t.Fatalf("expected missing currency flag, got %v", a.ComplianceFlags)
	}

	fields = completeFields()
	fields[domain.FieldCurrency] = "eur"
	a = s.Score(fields, nil, domain.DocumentTypeFormalInvoice)
	if !slices.Contains(a.ComplianceFlags, "Unrecognized currency: EUR") {
		t.Fatalf("expected unrecognized currency flag, got %v", a.ComplianceFlags)
	}
}

func TestScoreDates(t *testing.T) {
	cases := []struct {
		name     string
		date     any
		wantErr  string
		wantFlag string
	}{
		{name: "iso", date: "2024-03-01"},
		{name: "day first", date: "15/03/2024"},
		{name: "month only", date: "2024-03"},
		{name: "iso with time", date: "2024-03-01T10:00:00Z"},
		{name: "free text with digits", date: "March 1st 2024", wantErr: msgInvalidDate, wantFlag: flagIrregularDate},
		{name: "no digits", date: "yesterday", wantErr: msgUnparseableDate, wantFlag: flagCorruptDate},
		{name: "not a string", date: 20240301.0, wantErr: msgUnparseableDate, wantFlag: flagCorruptDate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := completeFields()
			fields[domain.FieldDate] = tc.date

			a := NewRiskScorer(domain.DefaultPolicy()).Score(fields, nil, domain.DocumentTypeFormalInvoice)
			if tc.wantErr == "" {
				if len(a.Errors) != 0 || len(a.ComplianceFlags) != 0 {
					t.Fatalf("expected valid date, got errors %v flags %v", a.Errors, a.ComplianceFlags)
				}
				return
			}
			if !slices.Contains(a.Errors, tc.wantErr) {
				t.Fatalf("expected %q in %v", tc.wantErr, a.Errors)
			}
			if !slices.Contains(a.ComplianceFlags, tc.wantFlag) {
				t.Fatalf("expected %q in %v", tc.wantFlag, a.ComplianceFlags)
			}
		})
	}
}

func TestScoreCarriesIncomingErrors(t *testing.T) {
	incoming := []string{"Extraction failed: timeout"}
	a := NewRiskScorer(domain.DefaultPolicy()).Score(completeFields(), incoming, domain.DocumentTypeFormalInvoice)

	if len(a.Errors) != 1 || a.Errors[0] != incoming[0] {
		t.Fatalf("expected incoming error to be kept, got %v", a.Errors)
	}
	if a.Factors.ValidationErrors != errorRiskStep {
		t.Fatalf("expected one error step, got %v", a.Factors.ValidationErrors)
	}
	a.Errors[0] = "mutated"
	if incoming[0] != "Extraction failed: timeout" {
		t.Fatalf("scorer must not alias the caller's slice")
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	s := NewRiskScorer(domain.DefaultPolicy())
	inputs := []domain.Fields{
		{},
		completeFields(),
		{domain.FieldTotalAmount: "abc", domain.FieldDate: "??"},
		{domain.FieldTotalAmount: "999999999999", domain.FieldCurrency: "USD"},
	}
	many := []string{"a", "b", "c", "d", "e", "f"}
	types := []domain.DocumentType{
		domain.DocumentTypeEmail,
		domain.DocumentTypeJSON,
		domain.DocumentTypeCreditNote,
		domain.DocumentTypeFormalInvoice,
		domain.DocumentTypeUnknown,
	}

	for _, fields := range inputs {
		for _, docType := range types {
			for _, errs := range [][]string{nil, many} {
				a := s.Score(fields, errs, docType)
				if a.Score < 0 || a.Score > 1 {
					t.Fatalf("score out of bounds for %v/%s: %v", fields, docType, a.Score)
				}
				if a.Factors.ValidationErrors > 1 {
					t.Fatalf("validation factor above 1: %v", a.Factors.ValidationErrors)
				}
			}
		}
	}
}

func TestFieldLabel(t *testing.T) {
	if got := fieldLabel(domain.FieldInvoiceNumber); got != "Invoice number" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := fieldLabel(""); got != "" {
		t.Fatalf("expected empty label, got %q", got)
	}
}
