package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveConversion(t *testing.T) {
	m := New()
	m.ObserveConversion("stream", "ok", 120*time.Millisecond)
	m.ObserveConversion("stream", "CORRUPT_HEADER", 5*time.Millisecond)
	m.ObserveConversion("stream", "ok", 80*time.Millisecond)

	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("stream", "ok")); got != 2 {
		t.Errorf("ok conversions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("stream", "CORRUPT_HEADER")); got != 1 {
		t.Errorf("corrupt conversions = %v, want 1", got)
	}
}

func TestSessionGauge(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveConversion("auto", "ok", time.Second)
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveTrigger("ok", 96000)
	m.ObserveInference("transcribe", "ok", time.Second)
	m.ObserveHTTP("/transcribe", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d", rec.Code)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ObserveTrigger("ok", 96000)
	m.ObserveHTTP("/transcribe", http.StatusBadRequest, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"audio_triggers_total", `status="400"`, "audio_trigger_buffer_bytes_bucket"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
