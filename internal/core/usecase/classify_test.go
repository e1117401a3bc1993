package usecase

import (
	"sync"
	"testing"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

func TestClassifyDocumentTypes(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		wantType domain.DocumentType
		wantLang domain.Language
	}{
		{
			name:     "email",
			text:     "From: billing@acme.com\nTo: ap@corp.com\nSubject: invoice 42\nSent: Monday",
			wantType: domain.DocumentTypeEmail,
			wantLang: domain.LanguageEnglish,
		},
		{
			name:     "credit note",
			text:     "NOTA DE CRÉDITO NC-0045 por devolución de mercancía, cliente Andes",
			wantType: domain.DocumentTypeCreditNote,
			wantLang: domain.LanguageSpanish,
		},
		{
			name:     "formal invoice",
			text:     "FACTURA No. 1001\nNIT 900.123.456\nProveedor: Andes SAS\nFecha: 2024-03-01",
			wantType: domain.DocumentTypeFormalInvoice,
			wantLang: domain.LanguageSpanish,
		},
		{
			name:     "json",
			text:     `{"invoice": "A-1", "vendor": null}`,
			wantType: domain.DocumentTypeJSON,
			wantLang: domain.LanguageEnglish,
		},
		{
			name:     "no keywords",
			text:     "lorem ipsum",
			wantType: domain.DocumentTypeUnknown,
			wantLang: domain.LanguageUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewClassifier(false).Classify(tc.text)
			if got.DocumentType != tc.wantType {
				t.Fatalf("expected type %q, got %q", tc.wantType, got.DocumentType)
			}
			if got.Language != tc.wantLang {
				t.Fatalf("expected language %q, got %q", tc.wantLang, got.Language)
			}
			if got.ContentHash != Fingerprint(tc.text) {
				t.Fatalf("expected content hash of the input")
			}
		})
	}
}

func TestClassifyTieGoesToFirstPattern(t *testing.T) {
	c := NewClassifier(false)
	c.score = func(string, []string) int { return 1 }

	got := c.Classify("anything")
	if got.DocumentType != domain.DocumentTypeEmail {
		t.Fatalf("expected first declared type on tie, got %q", got.DocumentType)
	}
	if got.Language != domain.LanguageSpanish {
		t.Fatalf("expected first declared language on tie, got %q", got.Language)
	}
}

func TestClassifyCacheSkipsScoring(t *testing.T) {
	c := NewClassifier(true)
	calls := 0
	c.score = func(lowered string, keywords []string) int {
		calls++
		return keywordScore(lowered, keywords)
	}

	first := c.Classify("Factura 77 NIT 900")
	afterFirst := calls
	if afterFirst == 0 {
		t.Fatalf("expected scoring on first call")
	}
	if first.Cached {
		t.Fatalf("first classification must not be cached")
	}

	second := c.Classify("Factura 77 NIT 900")
	if calls != afterFirst {
		t.Fatalf("expected no scoring on cache hit, got %d extra calls", calls-afterFirst)
	}
	if !second.Cached {
		t.Fatalf("expected cached result")
	}
	if second.DocumentType != first.DocumentType || second.Language != first.Language {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}
	if c.CacheSize() != 1 {
		t.Fatalf("expected cache size 1, got %d", c.CacheSize())
	}
}

func TestClassifyCacheDisabled(t *testing.T) {
	c := NewClassifier(false)
	calls := 0
	c.score = func(lowered string, keywords []string) int {
		calls++
		return keywordScore(lowered, keywords)
	}

	c.Classify("invoice")
	afterFirst := calls
	c.Classify("invoice")
	if calls != afterFirst*2 {
		t.Fatalf("expected rescoring without cache, got %d calls", calls)
	}
	if c.CacheSize() != 0 {
		t.Fatalf("expected empty cache, got %d", c.CacheSize())
	}
}

func TestClassifyConcurrentCacheAccess(t *testing.T) {
	c := NewClassifier(true)
	texts := []string{"factura nit", "credit note refund", "from: a@b.c subject: x"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Classify(texts[i%len(texts)])
		}(i)
	}
	wg.Wait()

	if c.CacheSize() != len(texts) {
		t.Fatalf("expected %d cache entries, got %d", len(texts), c.CacheSize())
	}
}
