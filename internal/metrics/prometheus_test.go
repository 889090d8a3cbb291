package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesCountersAndGauges(t *testing.T) {
	m := New()
	m.Inc(Registrations)
	m.Add(RelayDelivered, 2)
	m.Inc(`quote"back\slash`)

	gauges := func() map[string]int64 {
		return map[string]int64{"live": 3, "call": 2}
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	PrometheusHandler(m, gauges).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE call_signaling_events_total counter",
		`call_signaling_events_total{event="registrations"} 1`,
		`call_signaling_events_total{event="relay_delivered"} 2`,
		`call_signaling_events_total{event="quote\"back\\slash"} 1`,
		"# TYPE call_signaling_presence gauge",
		`call_signaling_presence{set="call"} 2`,
		`call_signaling_presence{set="live"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(Registrations)
	if got := m.Get(Registrations); got != 0 {
		t.Fatalf("Get on nil metrics=%d, want 0", got)
	}
}
