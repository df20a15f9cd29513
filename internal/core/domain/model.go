package domain

import "time"

type Backend string

const (
	BackendGPU Backend = "gpu"
	BackendAny Backend = "any"
)

// ModelSpec identifies the model to acquire and what it needs to run.
type ModelSpec struct {
	ID            string  `json:"id" yaml:"id"`
	Source        string  `json:"source" yaml:"source"`
	Backend       Backend `json:"backend" yaml:"backend"`
	ContextWindow int     `json:"context_window" yaml:"context_window"`
}

// LoadProgress is one download/initialization update. Either field may be absent.
type LoadProgress struct {
	Text     string   `json:"text,omitempty"`
	Fraction *float64 `json:"fraction,omitempty"`
}

func (p LoadProgress) HasText() bool { return p.Text != "" }

func (p LoadProgress) HasFraction() bool { return p.Fraction != nil }

// Percent rounds the fraction to a whole percentage clamped to [0,100].
func (p LoadProgress) Percent() int {
	if p.Fraction == nil {
		return 0
	}
	f := *p.Fraction
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 100
	}
	return int(f*100 + 0.5)
}

func Fraction(v float64) *float64 {
	return &v
}

type LoadState string

const (
	LoadStatePending LoadState = "pending"
	LoadStateLoading LoadState = "loading"
	LoadStateReady   LoadState = "ready"
	LoadStateFailed  LoadState = "failed"
)

type ModelStatus struct {
	Model     string     `json:"model"`
	State     LoadState  `json:"state"`
	Stage     string     `json:"stage,omitempty"`
	Percent   int        `json:"percent"`
	Failure   *Failure   `json:"failure,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ReadyAt   *time.Time `json:"ready_at,omitempty"`
}
