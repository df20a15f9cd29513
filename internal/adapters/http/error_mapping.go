package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrEmptyInput), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotReady),
		domain.IsKind(err, domain.ErrLoadTimeout),
		domain.IsKind(err, domain.ErrLoadFailure),
		domain.IsKind(err, domain.ErrUnsupportedBackend),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string      `json:"error"`
	Kind    string      `json:"kind"`
	Hint    domain.Hint `json:"hint,omitempty"`
	Message string      `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	failure := domain.Describe(err)
	writeJSON(w, mapErrorToHTTPStatus(err), errorResponse{
		Error:   failure.Title,
		Kind:    failure.Kind,
		Hint:    failure.Hint,
		Message: failure.Message,
	})
}
