package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/ports"
)

// Extractor reads invoice fields out of raw text with an Ollama model.
type Extractor struct {
	client *Client
	logger *slog.Logger
}

func NewExtractor(client *Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, req ports.ExtractionRequest) (domain.Fields, error) {
	prompt := buildExtractionPrompt(req.DocumentType, req.Language, e.client.clip(req.Content))

	reply, err := e.client.generateJSON(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil || domain.IsKind(err, domain.ErrTemporary) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrExtractionFailed, "extract fields", err)
	}

	fields, err := parseFields(reply)
	if err != nil {
		e.logger.Warn("extraction_fallback", "invoice_id", req.InvoiceID, "error", err)
		fields = fallbackFields(reply)
	}
	e.logger.Debug("fields_extracted", "invoice_id", req.InvoiceID, "fields", len(fields))
	return fields, nil
}

// parseFields decodes a model reply, tolerating a surrounding code fence.
func parseFields(reply string) (domain.Fields, error) {
	body := stripCodeFence(reply)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var fields domain.Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("parse extraction json: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("parse extraction json: reply is not an object")
	}
	return fields, nil
}

func stripCodeFence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var (
	invoiceNumberPattern = regexp.MustCompile(`(?i)(?:factura|invoice|number)[\s:#]*([A-Z0-9\-]+)`)
	totalAmountPattern   = regexp.MustCompile(`(?i)(?:total|amount)[\s:]*\$?([0-9][0-9,\.]*)`)
	currencyPattern      = regexp.MustCompile(`\b(USD|COP|EUR|MXN)\b`)
)

// fallbackFields scrapes the reply with regular expressions when it is not
// valid JSON. Missing values stay empty so validation reports them.
func fallbackFields(reply string) domain.Fields {
	fields := domain.Fields{
		domain.FieldInvoiceNumber: "",
		domain.FieldVendor:        "",
		domain.FieldTotalAmount:   0.0,
		domain.FieldCurrency:      "",
		domain.FieldDate:          "",
	}
	if m := invoiceNumberPattern.FindStringSubmatch(reply); m != nil {
		fields[domain.FieldInvoiceNumber] = strings.TrimSpace(m[1])
	}
	if m := totalAmountPattern.FindStringSubmatch(reply); m != nil {
		if amount, err := domain.ParseAmount(m[1]); err == nil {
			fields[domain.FieldTotalAmount] = amount
		}
	}
	if m := currencyPattern.FindStringSubmatch(strings.ToUpper(reply)); m != nil {
		fields[domain.FieldCurrency] = m[1]
	}
	return fields
}
