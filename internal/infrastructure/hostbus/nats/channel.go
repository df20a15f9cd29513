// Package nats carries host notifications (model loaded, analysis complete)
// and pending-text requests over NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/resilience"
)

const (
	MessageModelLoaded     = "MODEL_LOADED"
	MessageAnalysisDone    = "ANALYSIS_COMPLETE"
	MessageGetPendingText  = "GET_PENDING_TEXT"
	defaultSubjectPrefix   = "detector"
	defaultRequestTimeout  = 2 * time.Second
	defaultConnectTimeout  = 2 * time.Second
	defaultReconnectWait   = 2 * time.Second
	defaultMaxReconnects   = 60
	drainFlushTimeout      = 5 * time.Second
	pendingTextSubjectName = "pending_text"
)

type Subjects struct {
	ModelLoaded      string
	AnalysisComplete string
	PendingText      string
}

func NewSubjects(prefix string) Subjects {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return Subjects{
		ModelLoaded:      prefix + ".model_loaded",
		AnalysisComplete: prefix + ".analysis_complete",
		PendingText:      prefix + "." + pendingTextSubjectName,
	}
}

type Channel struct {
	conn           *nats.Conn
	subjects       Subjects
	executor       *resilience.Executor
	requestTimeout time.Duration
}

type Options struct {
	SubjectPrefix        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	RequestTimeout       time.Duration
	ResilienceExecutor   *resilience.Executor
}

func New(url string, options Options) (*Channel, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = defaultReconnectWait
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = defaultMaxReconnects
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ai-text-detector"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("hostbus_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("hostbus_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Channel{
		conn:           conn,
		subjects:       NewSubjects(options.SubjectPrefix),
		executor:       options.ResilienceExecutor,
		requestTimeout: requestTimeout,
	}, nil
}

func (c *Channel) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.FlushTimeout(drainFlushTimeout); err != nil {
		slog.Debug("hostbus_flush_failed", "error", err)
	}
	c.conn.Close()
}

type modelLoadedMessage struct {
	Type   string    `json:"type"`
	Model  string    `json:"model"`
	Source string    `json:"source,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

type analysisCompleteMessage struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	Classification string    `json:"classification"`
	Text           string    `json:"text"`
	CompletedAt    time.Time `json:"completed_at"`
}

type pendingTextRequest struct {
	Type string `json:"type"`
}

type pendingTextReply struct {
	Text string `json:"text"`
}

func encodeModelLoaded(spec domain.ModelSpec, now time.Time) ([]byte, error) {
	return json.Marshal(modelLoadedMessage{Type: MessageModelLoaded, Model: spec.ID, Source: spec.Source, SentAt: now.UTC()})
}

func encodeAnalysisComplete(detection domain.Detection) ([]byte, error) {
	return json.Marshal(analysisCompleteMessage{
		Type:           MessageAnalysisDone,
		ID:             detection.ID,
		Classification: string(detection.Label),
		Text:           detection.Text,
		CompletedAt:    detection.CompletedAt.UTC(),
	})
}

func decodePendingText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var reply pendingTextReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("decode pending text reply: %w", err)
	}
	return reply.Text, nil
}

func (c *Channel) NotifyModelLoaded(ctx context.Context, spec domain.ModelSpec) error {
	payload, err := encodeModelLoaded(spec, time.Now())
	if err != nil {
		return fmt.Errorf("encode model loaded: %w", err)
	}
	return c.publish(ctx, c.subjects.ModelLoaded, payload)
}

func (c *Channel) NotifyAnalysisComplete(ctx context.Context, detection domain.Detection) error {
	payload, err := encodeAnalysisComplete(detection)
	if err != nil {
		return fmt.Errorf("encode analysis complete: %w", err)
	}
	return c.publish(ctx, c.subjects.AnalysisComplete, payload)
}

// PendingText asks the host for text queued before the model was ready.
// No responder or a timeout surfaces as an error; callers treat it as "none".
func (c *Channel) PendingText(ctx context.Context) (string, error) {
	request, err := json.Marshal(pendingTextRequest{Type: MessageGetPendingText})
	if err != nil {
		return "", fmt.Errorf("encode pending text request: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(reqCtx, c.subjects.PendingText, request)
	if err != nil {
		return "", wrapTemporaryIfNeeded("nats request", err)
	}
	return decodePendingText(msg.Data)
}

func (c *Channel) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := c.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("nats publish", err)
	}
	return nil
}

// Discard is a HostNotifier and PendingTextSource for running without a host bus.
type Discard struct{}

func (Discard) NotifyModelLoaded(context.Context, domain.ModelSpec) error { return nil }

func (Discard) NotifyAnalysisComplete(context.Context, domain.Detection) error { return nil }

func (Discard) PendingText(context.Context) (string, error) { return "", nil }
