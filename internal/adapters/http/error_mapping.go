package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrExtractionFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client closed request
		return 499
	default:
		// ErrPolicyInvalid and ErrUnknownDecision are server-side bugs.
		return http.StatusInternalServerError
	}
}
