package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/infrastructure/resilience"
)

// errRateLimited marks a call that never reached the server because the
// limiter could not grant a token before the deadline.
var errRateLimited = errors.New("extraction rate limit")

var (
	retryable = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = resilience.ErrorClassification{RecordFailure: true}
	ignored   = resilience.ErrorClassification{}
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

// classifyExtractionError decides whether a failed generate call is retried
// and whether it counts against the breaker. A 404 means the model is not
// pulled, which no retry will fix but which should still open the breaker.
func classifyExtractionError(err error) resilience.ErrorClassification {
	var (
		statusErr *HTTPStatusError
		netErr    net.Error
	)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errRateLimited):
		return ignored
	case resilience.IsCircuitOpen(err):
		return retryable
	case errors.As(err, &statusErr):
		switch {
		case isRetryableHTTPStatus(statusErr.StatusCode):
			return retryable
		case statusErr.StatusCode == http.StatusNotFound:
			return permanent
		default:
			return ignored
		}
	case errors.As(err, &netErr):
		return retryable
	default:
		return permanent
	}
}

// wrapTemporaryIfNeeded tags errors a later attempt may not hit with
// domain.ErrTemporary.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if errors.Is(err, errRateLimited) || classifyExtractionError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
