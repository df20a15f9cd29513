package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
	"github.com/kirillkom/ai-text-detector/internal/core/ports"
	"github.com/kirillkom/ai-text-detector/internal/observability/metrics"
)

const maxClassifyBodyBytes = 64 << 10

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        *metrics.DetectorMetrics
}

type Router struct {
	detector ports.TextDetector
	status   ports.ModelStatusReader
	options  Options
}

func NewRouter(detector ports.TextDetector, status ports.ModelStatusReader, options Options) *Router {
	return &Router{
		detector: detector,
		status:   status,
		options:  options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/readyz", rt.readyz)
	mux.HandleFunc("/v1/model", rt.modelStatus)
	mux.Handle("/v1/classify", rateLimitMiddleware(
		http.HandlerFunc(rt.classify),
		rt.options.RateLimitRPS,
		rt.options.RateLimitBurst,
	))

	var handler http.Handler = mux
	if m := rt.options.Metrics; m != nil {
		mux.Handle("/metrics", m.Handler())
		handler = m.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	status := rt.status.Status()
	if status.State != domain.LoadStateReady {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(status.State)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status.State)})
}

func (rt *Router) modelStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.status.Status())
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	ID          string       `json:"id"`
	Label       domain.Label `json:"label"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	DurationMS  int64        `json:"duration_ms"`
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClassifyBodyBytes)).Decode(&req); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode classify request", errors.New("invalid json")))
		return
	}

	started := time.Now()
	detection, err := rt.detector.Detect(r.Context(), req.Text)
	if err != nil {
		if m := rt.options.Metrics; m != nil {
			m.RecordClassificationFailure(err)
		}
		writeError(w, err)
		return
	}
	if m := rt.options.Metrics; m != nil {
		m.RecordClassification(detection.Label, time.Since(started))
	}

	presentation := detection.Label.Presentation()
	writeJSON(w, http.StatusOK, classifyResponse{
		ID:          detection.ID,
		Label:       detection.Label,
		Title:       presentation.Title,
		Description: presentation.Description,
		DurationMS:  detection.Duration.Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
