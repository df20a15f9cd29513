package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
)

const (
	DefaultLoadTimeout = 300 * time.Second

	progressBuffer      = 32
	notificationTimeout = 5 * time.Second
)

// LoadOrchestrator acquires the model exactly once and gates readiness.
type LoadOrchestrator struct {
	spec     domain.ModelSpec
	probe    ports.CapabilityProbe
	factory  ports.EngineFactory
	notifier ports.HostNotifier
	timeout  time.Duration
	logger   *slog.Logger

	started   atomic.Bool
	handle    atomic.Pointer[ModelHandle]
	ready     chan struct{}
	readyOnce sync.Once
}

type LoadOption func(*LoadOrchestrator)

func WithLoadTimeout(timeout time.Duration) LoadOption {
	return func(o *LoadOrchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func WithHostNotifier(notifier ports.HostNotifier) LoadOption {
	return func(o *LoadOrchestrator) {
		o.notifier = notifier
	}
}

func WithLoadLogger(logger *slog.Logger) LoadOption {
	return func(o *LoadOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewLoadOrchestrator(
	spec domain.ModelSpec,
	probe ports.CapabilityProbe,
	factory ports.EngineFactory,
	opts ...LoadOption,
) *LoadOrchestrator {
	o := &LoadOrchestrator{
		spec:    spec,
		probe:   probe,
		factory: factory,
		timeout: DefaultLoadTimeout,
		logger:  slog.Default(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle returns the ready model, or nil while loading or after a failed load.
func (o *LoadOrchestrator) Handle() *ModelHandle {
	return o.handle.Load()
}

// Ready is closed once the model becomes ready. It stays open if the load fails.
func (o *LoadOrchestrator) Ready() <-chan struct{} {
	return o.ready
}

func (o *LoadOrchestrator) Spec() domain.ModelSpec {
	return o.spec
}

// Initialize runs the load, feeding every progress event to observe, and
// returns the ready handle. observe may be nil.
func (o *LoadOrchestrator) Initialize(ctx context.Context, observe func(domain.LoadProgress)) (*ModelHandle, error) {
	run := o.Start(ctx)
	for p := range run.Progress() {
		if observe != nil {
			observe(p)
		}
	}
	return run.Wait()
}

// Start begins the load in the background. Only the first call loads; later
// calls return a run that has already failed.
func (o *LoadOrchestrator) Start(ctx context.Context) *LoadRun {
	run := newLoadRun()
	if !o.started.CompareAndSwap(false, true) {
		run.progress.close()
		run.settle(nil, domain.WrapError(domain.ErrInvalidInput, "load model", errors.New("load already started")))
		return run
	}

	go func() {
		started := time.Now()
		o.logger.Info("model_load_started", "model", o.spec.ID, "source", o.spec.Source, "timeout", o.timeout.String())

		handle, err := o.load(ctx, run.progress)
		run.progress.close()
		if err != nil {
			o.logger.Error("model_load_failed", "model", o.spec.ID, "duration_ms", time.Since(started).Milliseconds(), "error", err)
		} else {
			o.logger.Info("model_ready", "model", o.spec.ID, "duration_ms", time.Since(started).Milliseconds())
			o.signalReady(ctx, handle)
		}
		run.settle(handle, err)
	}()
	return run
}

type loadOutcome struct {
	engine ports.InferenceEngine
	err    error
}

// load races engine creation against the timeout. The losing side is
// abandoned, not cancelled: its result lands in a buffered channel nobody reads.
func (o *LoadOrchestrator) load(ctx context.Context, progress *progressStream) (*ModelHandle, error) {
	if !o.probe.BackendAvailable(ctx, o.spec.Backend) {
		return nil, domain.WrapError(
			domain.ErrUnsupportedBackend,
			"load model",
			fmt.Errorf("%s compute is not available in this runtime", o.spec.Backend),
		)
	}

	results := make(chan loadOutcome, 1)
	go func() {
		engine, err := o.factory.CreateEngine(ctx, o.spec, progress.publish)
		results <- loadOutcome{engine: engine, err: err}
	}()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			return nil, domain.WrapError(domain.ErrLoadFailure, "load model", res.err)
		}
		if res.engine == nil {
			return nil, domain.WrapError(domain.ErrLoadFailure, "load model", errors.New("engine factory returned no engine"))
		}
		handle := NewModelHandle(o.spec, res.engine)
		handle.markReady()
		return handle, nil
	case <-timer.C:
		return nil, domain.WrapError(
			domain.ErrLoadTimeout,
			"load model",
			fmt.Errorf("model was not ready within %s", o.timeout),
		)
	case <-ctx.Done():
		return nil, domain.WrapError(domain.ErrLoadFailure, "load model", ctx.Err())
	}
}

func (o *LoadOrchestrator) signalReady(ctx context.Context, handle *ModelHandle) {
	o.readyOnce.Do(func() {
		o.handle.Store(handle)
		close(o.ready)

		if o.notifier == nil {
			return
		}
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
		defer cancel()
		if err := o.notifier.NotifyModelLoaded(notifyCtx, o.spec); err != nil {
			o.logger.Warn("host_notification_failed", "event", "model_loaded", "error", err)
		}
	})
}

// LoadRun is one model acquisition in flight.
type LoadRun struct {
	progress *progressStream
	done     chan struct{}
	handle   *ModelHandle
	err      error
}

func newLoadRun() *LoadRun {
	return &LoadRun{
		progress: newProgressStream(progressBuffer),
		done:     make(chan struct{}),
	}
}

// Progress yields load events until the run settles, then closes. It is a
// single-consumer stream; a lagging consumer sees coalesced events.
func (r *LoadRun) Progress() <-chan domain.LoadProgress {
	return r.progress.ch
}

func (r *LoadRun) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run settles.
func (r *LoadRun) Wait() (*ModelHandle, error) {
	<-r.done
	return r.handle, r.err
}

func (r *LoadRun) settle(handle *ModelHandle, err error) {
	r.handle, r.err = handle, err
	close(r.done)
}

type progressStream struct {
	mu     sync.Mutex
	ch     chan domain.LoadProgress
	closed bool
}

func newProgressStream(size int) *progressStream {
	return &progressStream{ch: make(chan domain.LoadProgress, size)}
}

// publish never blocks the engine: when the buffer is full the oldest queued
// event is dropped. Events after close are discarded.
func (s *progressStream) publish(p domain.LoadProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- p:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *progressStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
