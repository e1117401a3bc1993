package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

type typePattern struct {
	docType  domain.DocumentType
	keywords []string
}

type languagePattern struct {
	language domain.Language
	keywords []string
}

// Declaration order matters: the first pattern wins a tie.
var documentTypePatterns = []typePattern{
	{domain.DocumentTypeEmail, []string{"from:", "to:", "subject:", "@", "sent:", "received:"}},
	{domain.DocumentTypeJSON, []string{"{", "}", "invoice", "vendor", `"`, "null"}},
	{domain.DocumentTypeCreditNote, []string{"nota de crédito", "credit note", "devolución", "refund", "nc-"}},
	{domain.DocumentTypeFormalInvoice, []string{"factura", "invoice", "nit", "tax id", "ruc", "rfc"}},
}

var languagePatterns = []languagePattern{
	{domain.LanguageSpanish, []string{"factura", "cliente", "proveedor", "fecha", "importe", "nit"}},
	{domain.LanguageEnglish, []string{"invoice", "client", "vendor", "date", "amount", "tax"}},
	{domain.LanguagePortuguese, []string{"fatura", "cliente", "fornecedor", "data", "valor"}},
}

// Classifier assigns a document type and a language to raw text by keyword
// scoring. With caching enabled results are memoized by content fingerprint
// for the lifetime of the process.
type Classifier struct {
	cacheEnabled bool

	mu    sync.RWMutex
	cache map[string]domain.Classification

	// score counts distinct keywords present in lowered text.
	score func(lowered string, keywords []string) int
}

func NewClassifier(cacheEnabled bool) *Classifier {
	return &Classifier{
		cacheEnabled: cacheEnabled,
		cache:        make(map[string]domain.Classification),
		score:        keywordScore,
	}
}

func (c *Classifier) Classify(text string) domain.Classification {
	hash := Fingerprint(text)

	if c.cacheEnabled {
		c.mu.RLock()
		cached, ok := c.cache[hash]
		c.mu.RUnlock()
		if ok {
			cached.Cached = true
			return cached
		}
	}

	lowered := strings.ToLower(text)
	result := domain.Classification{
		DocumentType: c.documentType(lowered),
		Language:     c.language(lowered),
		ContentHash:  hash,
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[hash] = result
		c.mu.Unlock()
	}
	return result
}

// CacheSize returns the number of memoized fingerprints.
func (c *Classifier) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Classifier) documentType(lowered string) domain.DocumentType {
	best := domain.DocumentTypeUnknown
	bestScore := 0
	for _, p := range documentTypePatterns {
		if s := c.score(lowered, p.keywords); s > bestScore {
			best, bestScore = p.docType, s
		}
	}
	return best
}

func (c *Classifier) language(lowered string) domain.Language {
	best := domain.LanguageUnknown
	bestScore := 0
	for _, p := range languagePatterns {
		if s := c.score(lowered, p.keywords); s > bestScore {
			best, bestScore = p.language, s
		}
	}
	return best
}

func keywordScore(lowered string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			n++
		}
	}
	return n
}

// Fingerprint is the content-addressed key of a raw document.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
