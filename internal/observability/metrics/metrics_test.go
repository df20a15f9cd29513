package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

func scrape(t *testing.T, m *DetectorMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestRecordModelLoadAndClassification(t *testing.T) {
	m := NewDetectorMetrics("detector-test")
	m.ObserveLoadProgress(domain.LoadProgress{Fraction: domain.Fraction(0.25)})
	m.RecordModelLoad(3*time.Second, nil)
	m.RecordClassification(domain.LabelHumanWritten, 120*time.Millisecond)
	m.RecordClassification(domain.Label("garbage"), time.Millisecond)
	m.RecordClassificationFailure(domain.NewError(domain.ErrNotReady, "classify"))

	out := scrape(t, m)
	for _, want := range []string{
		`detector_model_loads_total{outcome="ready",service="detector-test"} 1`,
		`detector_model_ready{service="detector-test"} 1`,
		`detector_classification_total{label="human_written",service="detector-test"} 1`,
		`detector_classification_total{label="unknown",service="detector-test"} 1`,
		`detector_classification_failures_total{kind="not_ready",service="detector-test"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q\n%s", want, out)
		}
	}
}

func TestRecordModelLoadFailureKind(t *testing.T) {
	m := NewDetectorMetrics("detector-test")
	m.RecordModelLoad(time.Second, domain.WrapError(domain.ErrLoadTimeout, "load model", errors.New("slow")))

	out := scrape(t, m)
	if !strings.Contains(out, `detector_model_loads_total{outcome="load_timeout",service="detector-test"} 1`) {
		t.Fatalf("expected timeout outcome\n%s", out)
	}
	if !strings.Contains(out, `detector_model_ready{service="detector-test"} 0`) {
		t.Fatalf("model must not be marked ready\n%s", out)
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewDetectorMetrics("detector-test")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/classify", nil))

	if out := scrape(t, m); !strings.Contains(out, `detector_http_requests_total{method="POST",path="/v1/classify",service="detector-test",status="418"} 1`) {
		t.Fatalf("expected request counter\n%s", out)
	}
}

func TestMiddlewareCollapsesUnknownPaths(t *testing.T) {
	m := NewDetectorMetrics("detector-test")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for i := 0; i < 50; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, fmt.Sprintf("/scan/%d", i), nil))
	}

	out := scrape(t, m)
	if !strings.Contains(out, `detector_http_requests_total{method="GET",path="other",service="detector-test",status="404"} 50`) {
		t.Fatalf("expected unknown paths to share one series\n%s", out)
	}
	if strings.Contains(out, `path="/scan/`) {
		t.Fatalf("raw path leaked into labels\n%s", out)
	}
}

func TestRouteLabel(t *testing.T) {
	for path, want := range map[string]string{
		"/v1/classify":   "/v1/classify",
		"/metrics":       "/metrics",
		"/v1/classify/x": "other",
		"/":              "other",
	} {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
