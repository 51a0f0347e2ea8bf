package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bbernstein/runofshow-go/internal/protocol"
)

func scrape(t *testing.T, m *Metrics, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(update).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(body)
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.registry == nil {
		t.Error("registry should be initialized")
	}
}

func TestTransitionsAndBroadcasts(t *testing.T) {
	m := New()
	m.ObserveTransition("start", nil)
	m.ObserveTransition("start", nil)
	m.ObserveTransition("stop", errors.New("invalid"))
	m.Publish("evt", protocol.ResetAllStates{})
	m.ObserveDrop("evt", protocol.ServerTime{})

	out := scrape(t, m, nil)
	for _, want := range []string{
		`runofshow_transitions_total{op="start"} 2`,
		`runofshow_transitions_rejected_total{op="stop"} 1`,
		`runofshow_broadcasts_total{type="resetAllStates"} 1`,
		`runofshow_broadcasts_dropped_total{type="serverTime"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in scrape output", want)
		}
	}
}

func TestHandler_UpdatesGaugesBeforeScrape(t *testing.T) {
	m := New()
	calls := 0
	out := scrape(t, m, func() {
		calls++
		m.SetConnections(3)
		m.SetRooms(2)
		m.SetRunningTimers(1)
	})

	if calls != 1 {
		t.Errorf("Expected updateGauges to run once, ran %d times", calls)
	}
	for _, want := range []string{
		"runofshow_websocket_connections 3",
		"runofshow_rooms 2",
		"runofshow_running_timers 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in scrape output", want)
		}
	}
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	out := scrape(t, m, nil)
	if !strings.Contains(out, "runofshow_http_requests_total 2") {
		t.Error("Expected two requests counted")
	}
	if !strings.Contains(out, "runofshow_http_errors_total 1") {
		t.Error("Expected one error counted")
	}
}
