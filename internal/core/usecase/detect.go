package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
)

// HandleProvider hands out the model once it is ready, nil before.
type HandleProvider interface {
	Handle() *ModelHandle
}

// DetectUseCase runs one text through prompt, session and normalizer. It admits
// one classification at a time, whoever submits it.
type DetectUseCase struct {
	handles  HandleProvider
	session  *InferenceSession
	notifier ports.HostNotifier
	gate     *semaphore.Weighted
	budget   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type DetectOption func(*DetectUseCase)

// WithInferenceBudget bounds a single generation. Zero leaves it unbounded.
func WithInferenceBudget(budget time.Duration) DetectOption {
	return func(uc *DetectUseCase) {
		if budget > 0 {
			uc.budget = budget
		}
	}
}

func NewDetectUseCase(handles HandleProvider, session *InferenceSession, notifier ports.HostNotifier, opts ...DetectOption) *DetectUseCase {
	uc := &DetectUseCase{
		handles:  handles,
		session:  session,
		notifier: notifier,
		gate:     semaphore.NewWeighted(1),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Detect fails with ErrBusy while another classification is in flight.
func (uc *DetectUseCase) Detect(ctx context.Context, text string) (domain.Detection, error) {
	text = strings.TrimSpace(text)
	request, err := uc.session.NewRequest(text)
	if err != nil {
		return domain.Detection{}, err
	}
	if !uc.gate.TryAcquire(1) {
		return domain.Detection{}, domain.NewError(domain.ErrBusy, "detect")
	}
	defer uc.gate.Release(1)
	return uc.detect(ctx, request)
}

// detect runs to completion once submitted: the caller going away does not
// cancel generation, only the inference budget does.
func (uc *DetectUseCase) detect(ctx context.Context, request domain.ClassificationRequest) (domain.Detection, error) {
	runCtx := context.WithoutCancel(ctx)
	if uc.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, uc.budget)
		defer cancel()
	}

	start := uc.now()
	raw, err := uc.session.Classify(runCtx, uc.handles.Handle(), request)
	if err != nil {
		return domain.Detection{}, fmt.Errorf("detect: %w", err)
	}
	label := Normalize(raw)
	uc.logger.Debug("model_reply", "raw", string(raw), "label", string(label), "text_length", len(request.Text()))

	completed := uc.now()
	detection := domain.Detection{
		ID:          uuid.NewString(),
		Label:       label,
		Text:        request.Text(),
		Raw:         raw,
		CompletedAt: completed,
		Duration:    completed.Sub(start),
	}
	uc.logger.Info("classification_complete", "id", detection.ID, "label", string(label), "duration_ms", detection.Duration.Milliseconds())

	uc.notifyComplete(ctx, detection)
	return detection, nil
}

// DetectPending classifies text the host queued before the model was ready.
// It reports false when the host has nothing pending or cannot be asked. Unlike
// Detect it waits for a classification already in flight.
func (uc *DetectUseCase) DetectPending(ctx context.Context, source ports.PendingTextSource, delay time.Duration) (domain.Detection, bool, error) {
	if source == nil {
		return domain.Detection{}, false, nil
	}
	text, err := source.PendingText(ctx)
	if err != nil {
		uc.logger.Debug("no_pending_text", "error", err)
		return domain.Detection{}, false, nil
	}
	request, err := uc.session.NewRequest(strings.TrimSpace(text))
	if err != nil {
		return domain.Detection{}, false, nil
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Detection{}, false, ctx.Err()
		case <-timer.C:
		}
	}

	if err := uc.gate.Acquire(ctx, 1); err != nil {
		return domain.Detection{}, false, err
	}
	defer uc.gate.Release(1)

	detection, err := uc.detect(ctx, request)
	if err != nil {
		return domain.Detection{}, true, err
	}
	return detection, true, nil
}

func (uc *DetectUseCase) notifyComplete(ctx context.Context, detection domain.Detection) {
	if uc.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
	defer cancel()
	if err := uc.notifier.NotifyAnalysisComplete(notifyCtx, detection); err != nil {
		uc.logger.Warn("host_notification_failed", "event", "analysis_complete", "id", detection.ID, "error", err)
	}
}
