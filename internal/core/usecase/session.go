package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
)

// ModelHandle is the loaded model. Its ready flag moves from false to true once.
type ModelHandle struct {
	spec   domain.ModelSpec
	engine ports.InferenceEngine
	ready  atomic.Bool
}

func NewModelHandle(spec domain.ModelSpec, engine ports.InferenceEngine) *ModelHandle {
	return &ModelHandle{spec: spec, engine: engine}
}

func (h *ModelHandle) Spec() domain.ModelSpec { return h.spec }

func (h *ModelHandle) Ready() bool {
	return h != nil && h.ready.Load()
}

func (h *ModelHandle) markReady() bool {
	return h.ready.CompareAndSwap(false, true)
}

// GenerationPolicy keeps output short and near-deterministic: the model only
// needs to emit a label token, and newline or tag boundaries end generation.
func GenerationPolicy() domain.GenerationParams {
	return domain.GenerationParams{
		Temperature:       0.1,
		MaxTokens:         5,
		RepetitionPenalty: 1.5,
		Stop:              []string{"<|im_start|>", "<|im_end|>", "</", "\n"},
	}
}

// InferenceSession is the only component that invokes the model. It keeps no
// history between calls and assumes calls are serialized by the caller.
type InferenceSession struct {
	params domain.GenerationParams
}

func NewInferenceSession() *InferenceSession {
	return &InferenceSession{params: GenerationPolicy()}
}

// NewRequest builds a request for text under the session's fixed policy.
func (s *InferenceSession) NewRequest(text string) (domain.ClassificationRequest, error) {
	return domain.NewClassificationRequest(text, s.params)
}

func (s *InferenceSession) Classify(ctx context.Context, handle *ModelHandle, request domain.ClassificationRequest) (domain.RawReply, error) {
	if !handle.Ready() {
		return "", domain.NewError(domain.ErrNotReady, "classify")
	}
	if strings.TrimSpace(request.Text()) == "" {
		return "", domain.WrapError(domain.ErrEmptyInput, "classify", errors.New("text is blank"))
	}

	prompt := BuildPrompt(request.Text())
	reply, err := handle.engine.Complete(ctx, prompt.Messages(), request.Params())
	if err != nil {
		return "", domain.WrapError(domain.ErrInference, "classify", err)
	}
	return domain.RawReply(reply), nil
}
