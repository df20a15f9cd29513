package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/resilience"
)

var testSpec = domain.ModelSpec{ID: "gemma-270m-ai-detector", Source: "hf.co/test/gemma-270m-ai-detector", ContextWindow: 8192}

func TestCreateEngineStreamsPullProgress(t *testing.T) {
	var warmUp map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pull":
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if payload["model"] != testSpec.Source {
				t.Errorf("unexpected pull model %v", payload["model"])
			}
			_, _ = w.Write([]byte(`{"status":"pulling manifest"}` + "\n"))
			_, _ = w.Write([]byte(`{"status":"pulling abc","digest":"abc","total":200,"completed":100}` + "\n"))
			_, _ = w.Write([]byte(`{"status":"success"}` + "\n"))
		case "/api/generate":
			_ = json.NewDecoder(r.Body).Decode(&warmUp)
			_, _ = w.Write([]byte(`{"response":"","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var events []domain.LoadProgress
	engine, err := New(server.URL, Options{}).CreateEngine(context.Background(), testSpec, func(p domain.LoadProgress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("CreateEngine() error = %v", err)
	}
	if engine == nil {
		t.Fatalf("expected engine")
	}

	var sawHalf bool
	for _, e := range events {
		if e.Text == "pulling abc" && e.Percent() == 50 {
			sawHalf = true
		}
	}
	if !sawHalf {
		t.Fatalf("expected 50%% pull progress, got %+v", events)
	}
	last := events[len(events)-1]
	if last.Percent() != 100 {
		t.Fatalf("expected final progress 100%%, got %+v", last)
	}
	if warmUp["model"] != testSpec.Source {
		t.Fatalf("expected warm-up for %s, got %v", testSpec.Source, warmUp)
	}
}

func TestCreateEngineReportsPullError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pulling manifest"}` + "\n"))
		_, _ = w.Write([]byte(`{"error":"pull model manifest: file does not exist"}` + "\n"))
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).CreateEngine(context.Background(), testSpec, nil)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Fatalf("expected pull error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("missing manifest is not a network fault: %v", err)
	}
}

func TestCreateEngineTruncatedPullIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pulling abc","total":10,"completed":1}` + "\n"))
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).CreateEngine(context.Background(), testSpec, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error for truncated stream, got %v", err)
	}
}

func TestCreateEngineUnreachableIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url, Options{}).CreateEngine(context.Background(), testSpec, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestEngineCompleteSendsGenerationOptions(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"human_written"},"done":true}`))
	}))
	defer server.Close()

	engine := &Engine{client: New(server.URL, Options{}), model: "m", contextWindow: 8192}
	reply, err := engine.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "instruction"},
		{Role: domain.RoleUser, Content: "query"},
	}, domain.GenerationParams{Temperature: 0.1, MaxTokens: 5, RepetitionPenalty: 1.5, Stop: []string{"\n", "</"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "human_written" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if captured.Stream || captured.Model != "m" || len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", captured)
	}
	opts := captured.Options
	if opts.NumPredict != 5 || opts.RepeatPenalty != 1.5 || opts.NumCtx != 8192 || len(opts.Stop) != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestEngineCompleteIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"m\" not found"}`))
	}))
	defer server.Close()

	engine := &Engine{client: New(server.URL, Options{}), model: "m"}
	_, err := engine.Complete(context.Background(), nil, domain.GenerationParams{})
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if !strings.Contains(err.Error(), `model "m" not found`) {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestEngineCompleteDoesNotRetryThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		BreakerEnabled:      false,
	})
	engine := &Engine{client: New(server.URL, Options{ResilienceExecutor: executor}), model: "m"}
	_, err := engine.Complete(context.Background(), nil, domain.GenerationParams{})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}
