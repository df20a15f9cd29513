package usecase

import (
	"sync"
	"time"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

// LoadTracker keeps the latest load state for status readers.
type LoadTracker struct {
	mu     sync.RWMutex
	status domain.ModelStatus
	now    func() time.Time
}

func NewLoadTracker(model string) *LoadTracker {
	return &LoadTracker{
		status: domain.ModelStatus{Model: model, State: domain.LoadStatePending},
		now:    time.Now,
	}
}

func (t *LoadTracker) Started() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.status.State = domain.LoadStateLoading
	t.status.StartedAt = &now
}

// Observe records stage text and percent independently; an event carrying
// only one of them leaves the other as last reported.
func (t *LoadTracker) Observe(p domain.LoadProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.HasText() {
		t.status.Stage = p.Text
	}
	if p.HasFraction() {
		t.status.Percent = p.Percent()
	}
}

func (t *LoadTracker) Finished(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		failure := domain.Describe(err)
		t.status.State = domain.LoadStateFailed
		t.status.Failure = &failure
		return
	}
	now := t.now()
	t.status.State = domain.LoadStateReady
	t.status.Stage = "Model ready"
	t.status.Percent = 100
	t.status.ReadyAt = &now
}

func (t *LoadTracker) Status() domain.ModelStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.status
	if out.Failure != nil {
		failure := *out.Failure
		out.Failure = &failure
	}
	return out
}
