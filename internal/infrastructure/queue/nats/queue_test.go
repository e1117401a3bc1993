package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

func TestInvoiceMessageCodec(t *testing.T) {
	payload, err := encodeInvoice(domain.InvoiceInput{ID: 7, Content: "FACTURA 7"})
	if err != nil {
		t.Fatalf("encodeInvoice() error = %v", err)
	}
	got, err := decodeInvoice(payload)
	if err != nil {
		t.Fatalf("decodeInvoice() error = %v", err)
	}
	if got.ID != 7 || got.Content != "FACTURA 7" {
		t.Fatalf("unexpected invoice %+v", got)
	}
}

func TestInvoiceMessageRejectsEmptyContent(t *testing.T) {
	if _, err := encodeInvoice(domain.InvoiceInput{ID: 1, Content: "  "}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input on encode, got %v", err)
	}
	if _, err := decodeInvoice([]byte(`{"id":1}`)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input on decode, got %v", err)
	}
	if _, err := decodeInvoice([]byte(`not json`)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for garbage, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable {
		t.Fatalf("expected closed connection to be retryable")
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried or recorded: %+v", c)
	}
	if c := classifyNATSError(errors.New("bad subject")); c.Retryable {
		t.Fatalf("unknown errors are not retryable")
	}
}

func TestPublishErrorKinds(t *testing.T) {
	err := publishError(nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !errors.Is(err, nats.ErrTimeout) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}

	err = publishError(fmt.Errorf("publish: %w", nats.ErrMaxPayload))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected oversized invoices to be invalid input, got %v", err)
	}
	if c := classifyNATSError(nats.ErrMaxPayload); c.Retryable || c.RecordFailure {
		t.Fatalf("oversized payloads must not trip the breaker: %+v", c)
	}

	plain := errors.New("bad subject")
	if got := publishError(plain); got != plain {
		t.Fatalf("expected unknown errors to pass through, got %v", got)
	}
}
