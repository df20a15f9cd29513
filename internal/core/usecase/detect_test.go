package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

type handleProviderFake struct {
	handle *ModelHandle
}

func (f handleProviderFake) Handle() *ModelHandle { return f.handle }

// blockingEngine parks each generation until release is closed, or until its
// context ends when honourCtx is set.
type blockingEngine struct {
	started   chan struct{}
	release   chan struct{}
	honourCtx bool
	ctxErr    chan error
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 4),
	}
}

func (e *blockingEngine) Complete(ctx context.Context, _ []domain.ChatMessage, _ domain.GenerationParams) (string, error) {
	e.started <- struct{}{}
	if e.honourCtx {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-e.release:
		}
	} else {
		<-e.release
	}
	e.ctxErr <- ctx.Err()
	return "ai", nil
}

func blockingHandle(engine *blockingEngine) *ModelHandle {
	handle := NewModelHandle(domain.ModelSpec{ID: "test-model"}, engine)
	handle.markReady()
	return handle
}

type pendingFake struct {
	text string
	err  error
}

func (f pendingFake) PendingText(context.Context) (string, error) { return f.text, f.err }

func TestDetectEndToEnd(t *testing.T) {
	engine := &engineFake{reply: "<o>human_written</o>"}
	notifier := &notifierFake{}
	uc := NewDetectUseCase(handleProviderFake{handle: readyHandle(engine)}, NewInferenceSession(), notifier)

	detection, err := uc.Detect(context.Background(), "  idk man, felt weird  ")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if detection.Label != domain.LabelHumanWritten {
		t.Fatalf("expected human_written, got %q", detection.Label)
	}
	if detection.Text != "idk man, felt weird" {
		t.Fatalf("expected trimmed text, got %q", detection.Text)
	}
	if detection.ID == "" {
		t.Fatalf("expected detection id")
	}
	if len(notifier.detections) != 1 || notifier.detections[0].Label != domain.LabelHumanWritten {
		t.Fatalf("expected analysis complete notification, got %+v", notifier.detections)
	}
}

func TestDetectBeforeReady(t *testing.T) {
	notifier := &notifierFake{}
	uc := NewDetectUseCase(handleProviderFake{}, NewInferenceSession(), notifier)

	_, err := uc.Detect(context.Background(), "text")
	if !domain.IsKind(err, domain.ErrNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if len(notifier.detections) != 0 {
		t.Fatalf("no notification expected on failure")
	}
}

func TestDetectBlankText(t *testing.T) {
	engine := &engineFake{reply: "ai"}
	uc := NewDetectUseCase(handleProviderFake{handle: readyHandle(engine)}, NewInferenceSession(), nil)

	_, err := uc.Detect(context.Background(), " \t\n")
	if !domain.IsKind(err, domain.ErrEmptyInput) {
		t.Fatalf("expected empty input, got %v", err)
	}
	if engine.callCount() != 0 {
		t.Fatalf("engine must not be called")
	}
}

func TestDetectUnknownIsNotRetried(t *testing.T) {
	engine := &engineFake{reply: "perhaps"}
	uc := NewDetectUseCase(handleProviderFake{handle: readyHandle(engine)}, NewInferenceSession(), nil)

	detection, err := uc.Detect(context.Background(), "text")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if detection.Label != domain.LabelUnknown {
		t.Fatalf("expected unknown, got %q", detection.Label)
	}
	if engine.callCount() != 1 {
		t.Fatalf("expected a single generation, got %d", engine.callCount())
	}
}

func TestDetectSucceedsWhenNotificationFails(t *testing.T) {
	engine := &engineFake{reply: "ai_generated"}
	notifier := &notifierFake{err: errors.New("host gone")}
	uc := NewDetectUseCase(handleProviderFake{handle: readyHandle(engine)}, NewInferenceSession(), notifier)

	detection, err := uc.Detect(context.Background(), "text")
	if err != nil {
		t.Fatalf("notification failure must not fail detection: %v", err)
	}
	if detection.Label != domain.LabelAIGenerated {
		t.Fatalf("expected ai_generated, got %q", detection.Label)
	}
}

func TestDetectPending(t *testing.T) {
	engine := &engineFake{reply: "ai"}
	uc := NewDetectUseCase(handleProviderFake{handle: readyHandle(engine)}, NewInferenceSession(), nil)

	detection, ok, err := uc.DetectPending(context.Background(), pendingFake{text: "queued text"}, time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("DetectPending() = %v, %v", ok, err)
	}
	if detection.Text != "queued text" || detection.Label != domain.LabelAIGenerated {
		t.Fatalf("unexpected detection %+v", detection)
	}
}

func TestDetectPendingNothingQueued(t *testing.T) {
	engine := &engineFake{reply: "ai"}
	uc := NewDetectUseCase(handleProviderFake{handle: readyHandle(engine)}, NewInferenceSession(), nil)

	for _, source := range []pendingFake{{}, {text: "   "}, {err: errors.New("no receiver")}} {
		_, ok, err := uc.DetectPending(context.Background(), source, 0)
		if ok || err != nil {
			t.Fatalf("expected nothing pending for %+v, got ok=%v err=%v", source, ok, err)
		}
	}
	if engine.callCount() != 0 {
		t.Fatalf("engine must not be called without pending text")
	}
}

func TestDetectRejectsSecondClassificationWhileBusy(t *testing.T) {
	engine := newBlockingEngine()
	uc := NewDetectUseCase(handleProviderFake{handle: blockingHandle(engine)}, NewInferenceSession(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := uc.Detect(context.Background(), "first")
		done <- err
	}()
	<-engine.started

	if _, err := uc.Detect(context.Background(), "second"); !domain.IsKind(err, domain.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if _, err := uc.Detect(context.Background(), "   "); !domain.IsKind(err, domain.ErrEmptyInput) {
		t.Fatalf("blank text is rejected before the gate, got %v", err)
	}

	close(engine.release)
	if err := <-done; err != nil {
		t.Fatalf("first Detect() error = %v", err)
	}
	if _, err := uc.Detect(context.Background(), "third"); err != nil {
		t.Fatalf("gate should be free after completion, got %v", err)
	}
}

func TestDetectPendingWaitsForInFlightClassification(t *testing.T) {
	engine := newBlockingEngine()
	uc := NewDetectUseCase(handleProviderFake{handle: blockingHandle(engine)}, NewInferenceSession(), nil)

	first := make(chan error, 1)
	go func() {
		_, err := uc.Detect(context.Background(), "typed by user")
		first <- err
	}()
	<-engine.started

	pending := make(chan error, 1)
	go func() {
		_, ok, err := uc.DetectPending(context.Background(), pendingFake{text: "queued text"}, 0)
		if err == nil && !ok {
			err = errors.New("pending text was not classified")
		}
		pending <- err
	}()

	select {
	case <-engine.started:
		t.Fatalf("pending classification must wait for the one in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(engine.release)
	if err := <-first; err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if err := <-pending; err != nil {
		t.Fatalf("DetectPending() error = %v", err)
	}
}

func TestDetectIgnoresCallerCancellation(t *testing.T) {
	engine := newBlockingEngine()
	uc := NewDetectUseCase(handleProviderFake{handle: blockingHandle(engine)}, NewInferenceSession(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := uc.Detect(ctx, "text")
		done <- err
	}()
	<-engine.started
	cancel()
	close(engine.release)

	if err := <-done; err != nil {
		t.Fatalf("classification should run to completion, got %v", err)
	}
	if err := <-engine.ctxErr; err != nil {
		t.Fatalf("engine saw a cancelled context: %v", err)
	}
}

func TestDetectInferenceBudgetBoundsGeneration(t *testing.T) {
	engine := newBlockingEngine()
	engine.honourCtx = true
	defer close(engine.release)
	uc := NewDetectUseCase(
		handleProviderFake{handle: blockingHandle(engine)},
		NewInferenceSession(),
		nil,
		WithInferenceBudget(20*time.Millisecond),
	)

	_, err := uc.Detect(context.Background(), "text")
	if !domain.IsKind(err, domain.ErrInference) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected inference deadline error, got %v", err)
	}
}
