package usecase

import (
	"errors"
	"testing"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

func TestLoadTrackerKeepsTextAndPercentIndependent(t *testing.T) {
	tracker := NewLoadTracker("model")
	tracker.Started()
	tracker.Observe(domain.LoadProgress{Text: "Fetching"})
	tracker.Observe(domain.LoadProgress{Fraction: domain.Fraction(0.424)})

	status := tracker.Status()
	if status.State != domain.LoadStateLoading {
		t.Fatalf("expected loading, got %q", status.State)
	}
	if status.Stage != "Fetching" || status.Percent != 42 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestLoadTrackerFinished(t *testing.T) {
	tracker := NewLoadTracker("model")
	tracker.Started()
	tracker.Finished(nil)
	if status := tracker.Status(); status.State != domain.LoadStateReady || status.Percent != 100 || status.ReadyAt == nil {
		t.Fatalf("unexpected ready status %+v", status)
	}

	failed := NewLoadTracker("model")
	failed.Finished(domain.WrapError(domain.ErrLoadTimeout, "load model", errors.New("slow")))
	status := failed.Status()
	if status.State != domain.LoadStateFailed || status.Failure == nil || status.Failure.Kind != "load_timeout" {
		t.Fatalf("unexpected failed status %+v", status)
	}
}
