package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/ai-text-detector/internal/adapters/http"
	"github.com/kirillkom/ai-text-detector/internal/config"
	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
	"github.com/kirillkom/ai-text-detector/internal/core/usecase"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/capability"
	hostbus "github.com/kirillkom/ai-text-detector/internal/infrastructure/hostbus/nats"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/resilience"
	"github.com/kirillkom/ai-text-detector/internal/observability/metrics"
)

const serviceName = "ai-text-detector"

type hostChannel interface {
	ports.HostNotifier
	ports.PendingTextSource
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Metrics  *metrics.DetectorMetrics
	Loader   *usecase.LoadOrchestrator
	Tracker  *usecase.LoadTracker
	DetectUC *usecase.DetectUseCase
	Handler  http.Handler

	host         hostChannel
	pendingDelay time.Duration
	closeFn      func()
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	spec := domain.ModelSpec{
		ID:            cfg.ModelID,
		Source:        cfg.ModelSource,
		Backend:       domain.BackendAny,
		ContextWindow: cfg.ModelContextWindow,
	}
	var probe ports.CapabilityProbe = capability.Static(true)
	if cfg.RequireGPU {
		spec.Backend = domain.BackendGPU
		probe = capability.NewDeviceProbe(cfg.GPUDevicePaths)
	}

	inferenceCfg := resilience.InferenceConfig()
	inferenceCfg.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		inferenceCfg.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	if cfg.BreakerFailureRatio > 0 {
		inferenceCfg.BreakerFailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerOpenTimeoutSeconds > 0 {
		inferenceCfg.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second
	}
	ollamaClient := ollama.New(cfg.OllamaURL, ollama.Options{
		ResilienceExecutor: resilience.NewExecutor(inferenceCfg),
		KeepAlive:          cfg.OllamaKeepAlive,
	})

	var host hostChannel = hostbus.Discard{}
	closeFn := func() {}
	if cfg.NATSURL != "" {
		notifyCfg := resilience.NotificationConfig()
		if cfg.NotifyRetryMaxAttempts > 0 {
			notifyCfg.RetryMaxAttempts = cfg.NotifyRetryMaxAttempts
		}
		channel, err := hostbus.New(cfg.NATSURL, hostbus.Options{
			SubjectPrefix:      cfg.NATSSubjectPrefix,
			RequestTimeout:     time.Duration(cfg.NATSRequestTimeoutMS) * time.Millisecond,
			ResilienceExecutor: resilience.NewExecutor(notifyCfg),
		})
		if err != nil {
			return nil, fmt.Errorf("init host bus: %w", err)
		}
		host = channel
		closeFn = channel.Close
	} else {
		logger.Info("host_bus_disabled")
	}

	loader := usecase.NewLoadOrchestrator(
		spec,
		probe,
		ollamaClient,
		usecase.WithLoadTimeout(time.Duration(cfg.ModelLoadTimeoutSeconds)*time.Second),
		usecase.WithHostNotifier(host),
		usecase.WithLoadLogger(logger),
	)
	tracker := usecase.NewLoadTracker(spec.ID)
	detectUC := usecase.NewDetectUseCase(
		loader,
		usecase.NewInferenceSession(),
		host,
		usecase.WithInferenceBudget(time.Duration(cfg.InferenceTimeoutSeconds)*time.Second),
	)
	detectorMetrics := metrics.NewDetectorMetrics(serviceName)

	handler := httpadapter.NewRouter(detectUC, tracker, httpadapter.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        detectorMetrics,
	}).Handler()

	return &App{
		Config: cfg,
		Logger: logger,

		Metrics:  detectorMetrics,
		Loader:   loader,
		Tracker:  tracker,
		DetectUC: detectUC,
		Handler:  handler,

		host:         host,
		pendingDelay: time.Duration(cfg.PendingTextDelayMS) * time.Millisecond,
		closeFn:      closeFn,
	}, nil
}

// LoadModel acquires the model, then classifies whatever text the host queued
// while it was loading. A failed load is recorded for status readers and returned.
func (a *App) LoadModel(ctx context.Context) error {
	a.Tracker.Started()
	started := time.Now()

	_, err := a.Loader.Initialize(ctx, func(p domain.LoadProgress) {
		a.Tracker.Observe(p)
		a.Metrics.ObserveLoadProgress(p)
		attrs := []any{"stage", p.Text}
		if p.HasFraction() {
			attrs = append(attrs, "percent", p.Percent())
		}
		a.Logger.Info("model_load_progress", attrs...)
	})
	a.Tracker.Finished(err)
	a.Metrics.RecordModelLoad(time.Since(started), err)
	if err != nil {
		return err
	}

	classifyStarted := time.Now()
	detection, ok, err := a.DetectUC.DetectPending(ctx, a.host, a.pendingDelay)
	switch {
	case err != nil:
		a.Metrics.RecordClassificationFailure(err)
		a.Logger.Warn("pending_text_failed", "error", err)
	case ok:
		a.Metrics.RecordClassification(detection.Label, time.Since(classifyStarted))
		a.Logger.Info("pending_text_classified", "id", detection.ID, "label", string(detection.Label))
	}
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
