package ports

import (
	"context"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

// ProgressFunc receives load progress as the engine reports it.
type ProgressFunc func(domain.LoadProgress)

// EngineFactory acquires a model and returns a ready engine, or fails.
// Implementations may keep running after ctx is abandoned by the caller.
type EngineFactory interface {
	CreateEngine(ctx context.Context, spec domain.ModelSpec, onProgress ProgressFunc) (InferenceEngine, error)
}

// InferenceEngine runs a single chat completion against a loaded model.
type InferenceEngine interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, params domain.GenerationParams) (string, error)
}

// CapabilityProbe answers whether the required compute backend exists in this runtime.
type CapabilityProbe interface {
	BackendAvailable(ctx context.Context, backend domain.Backend) bool
}

// HostNotifier delivers fire-and-forget notifications to the host process.
type HostNotifier interface {
	NotifyModelLoaded(ctx context.Context, spec domain.ModelSpec) error
	NotifyAnalysisComplete(ctx context.Context, detection domain.Detection) error
}

// PendingTextSource asks the host for text queued before the model was ready.
type PendingTextSource interface {
	PendingText(ctx context.Context) (string, error)
}
