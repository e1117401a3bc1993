package ollama

import (
	"fmt"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

const fieldSchema = `{"invoice_number":"","vendor":"","total_amount":0,"currency":"","date":"YYYY-MM-DD"}`

type promptKey struct {
	docType  domain.DocumentType
	language domain.Language
}

var promptHeaders = map[promptKey]string{
	{domain.DocumentTypeFormalInvoice, domain.LanguageSpanish}: "Factura formal en español. Extrae los datos como JSON.",
	{domain.DocumentTypeFormalInvoice, domain.LanguageEnglish}: "Formal invoice. Extract the data as JSON.",
	{domain.DocumentTypeEmail, domain.LanguageEnglish}:         "Invoice received by email. Extract the data as JSON.",
	{domain.DocumentTypeEmail, domain.LanguageSpanish}:         "Factura recibida por correo. Extrae los datos como JSON.",
	{domain.DocumentTypeCreditNote, domain.LanguageSpanish}:    "Nota de crédito. Extrae los datos como JSON.",
	{domain.DocumentTypeJSON, domain.LanguageEnglish}:          "JSON invoice. Normalize it to the format below.",
}

const defaultPromptHeader = "Extract the invoice data as JSON."

func buildExtractionPrompt(docType domain.DocumentType, language domain.Language, content string) string {
	header, ok := promptHeaders[promptKey{docType, language}]
	if !ok {
		header = defaultPromptHeader
	}
	return fmt.Sprintf("%s\nUse exactly these keys, no markdown, no extra keys.\n\nDocument:\n%s\n\nFormat: %s", header, content, fieldSchema)
}
