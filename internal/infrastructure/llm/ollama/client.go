package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
	"github.com/kirillkom/ai-text-detector/internal/infrastructure/resilience"
)

const defaultKeepAlive = "30m"

// Client talks to a local Ollama server. It acquires models (EngineFactory)
// and hands out engines bound to one model.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	keepAlive  string
}

type Options struct {
	// HTTPClient should not set Timeout: pulls stream for minutes and are
	// bounded by the caller's context instead.
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
	KeepAlive          string
}

func New(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	keepAlive := strings.TrimSpace(options.KeepAlive)
	if keepAlive == "" {
		keepAlive = defaultKeepAlive
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		executor:   options.ResilienceExecutor,
		keepAlive:  keepAlive,
	}
}

// CreateEngine pulls the model (streaming progress), loads it into memory and
// returns an engine for it.
func (c *Client) CreateEngine(ctx context.Context, spec domain.ModelSpec, onProgress ports.ProgressFunc) (ports.InferenceEngine, error) {
	if onProgress == nil {
		onProgress = func(domain.LoadProgress) {}
	}
	model := modelName(spec)
	if model == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama create engine", fmt.Errorf("model spec has neither source nor id"))
	}

	onProgress(domain.LoadProgress{Text: "Downloading model files from " + model})
	if err := c.pull(ctx, model, onProgress); err != nil {
		return nil, wrapTemporaryIfNeeded("ollama pull", err)
	}

	onProgress(domain.LoadProgress{Text: "Initializing model"})
	if err := c.warmUp(ctx, model, spec.ContextWindow); err != nil {
		return nil, wrapTemporaryIfNeeded("ollama load", err)
	}
	onProgress(domain.LoadProgress{Text: "Model loaded", Fraction: domain.Fraction(1)})

	return &Engine{client: c, model: model, contextWindow: spec.ContextWindow}, nil
}

// Engine runs chat completions against one loaded model.
type Engine struct {
	client        *Client
	model         string
	contextWindow int
}

func (e *Engine) Model() string { return e.model }

func (e *Engine) Complete(ctx context.Context, messages []domain.ChatMessage, params domain.GenerationParams) (string, error) {
	request := chatRequest{
		Model:     e.model,
		Messages:  toChatMessages(messages),
		Stream:    false,
		KeepAlive: e.client.keepAlive,
		Options: chatOptions{
			Temperature:   params.Temperature,
			NumPredict:    params.MaxTokens,
			RepeatPenalty: params.RepetitionPenalty,
			Stop:          params.Stop,
			NumCtx:        e.contextWindow,
		},
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/chat", request, &response, "chat")
	}

	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, "ollama.chat", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama chat", err)
	}
	return response.Message.Content, nil
}

// warmUp sends an empty prompt, which makes Ollama load the model into memory.
func (c *Client) warmUp(ctx context.Context, model string, contextWindow int) error {
	request := map[string]any{
		"model":      model,
		"prompt":     "",
		"stream":     false,
		"keep_alive": c.keepAlive,
	}
	if contextWindow > 0 {
		request["options"] = map[string]any{"num_ctx": contextWindow}
	}
	var response struct {
		Done bool `json:"done"`
	}
	return c.postJSON(ctx, "/api/generate", request, &response, "load")
}

func modelName(spec domain.ModelSpec) string {
	if source := strings.TrimSpace(spec.Source); source != "" {
		return source
	}
	return strings.TrimSpace(spec.ID)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature   float64  `json:"temperature"`
	NumPredict    int      `json:"num_predict,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	NumCtx        int      `json:"num_ctx,omitempty"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func toChatMessages(messages []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
