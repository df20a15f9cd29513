package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the Ollama API.
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
	if e.Body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Body)
}

// Transient reports gateway/overload statuses; 4xx answers such as an unknown
// model are permanent.
func (e *HTTPStatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

var (
	transientFailure = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	permanentFailure = resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	uncountedFailure = resilience.ErrorClassification{Retryable: false, RecordFailure: false}
)

func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return uncountedFailure
	case resilience.IsCircuitOpen(err):
		return transientFailure
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.Transient() {
			return transientFailure
		}
		return uncountedFailure
	}
	if isTransferError(err) {
		return transientFailure
	}
	return permanentFailure
}

func isTransferError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// wrapTemporaryIfNeeded tags transfer-shaped faults with domain.ErrTemporary so
// load failures can carry a network remediation hint.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err) == transientFailure {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func trimBody(body []byte) string {
	return strings.TrimSpace(string(body))
}
