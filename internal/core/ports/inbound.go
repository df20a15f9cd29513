package ports

import (
	"context"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

// TextDetector is the inbound contract for classifying a single text.
type TextDetector interface {
	Detect(ctx context.Context, text string) (domain.Detection, error)
}

// ModelStatusReader is the inbound read model for load state.
type ModelStatusReader interface {
	Status() domain.ModelStatus
}
