package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrLoadTimeout        = errors.New("model load timeout")
	ErrLoadFailure        = errors.New("model load failed")
	ErrNotReady           = errors.New("model not ready")
	ErrEmptyInput         = errors.New("empty input")
	ErrInference          = errors.New("inference failed")
	ErrBusy               = errors.New("classification in progress")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// NewError reports kind for operation without an underlying cause.
func NewError(kind error, operation string) error {
	return fmt.Errorf("%s: %w", operation, kind)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
