package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hickagpt/agenda/internal/metrics"
)

func render(t *testing.T, reg *metrics.Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics handler status = %d, want 200", rr.Code)
	}
	body, err := io.ReadAll(rr.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestHandler_ExposesLifecycleCounters(t *testing.T) {
	reg := &metrics.Registry{}
	reg.Scheduled.Add(3)
	reg.Cancelled.Add(1)
	reg.Warned.Add(2)
	reg.Executed.Add(2)

	out := render(t, reg)

	for _, want := range []string{
		"agenda_events_scheduled_total 3",
		"agenda_events_cancelled_total 1",
		"agenda_events_rescheduled_total 0",
		"agenda_events_warned_total 2",
		"agenda_events_executed_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestHandler_ExposesHTTPCounters(t *testing.T) {
	reg := &metrics.Registry{}
	reg.HTTPReqs.Inc(metrics.HTTPKey("POST", "/events", "201"))
	reg.HTTPReqs.Inc(metrics.HTTPKey("POST", "/events", "201"))
	reg.HTTPDurMs.Add(metrics.HTTPDurKey("POST", "/events"), 42)
	reg.HTTPDurCnt.Inc(metrics.HTTPDurKey("POST", "/events"))

	out := render(t, reg)

	if !strings.Contains(out, `agenda_http_requests_total{method="POST",path="/events",status="201"} 2`) {
		t.Errorf("request counter missing or wrong:\n%s", out)
	}
	if !strings.Contains(out, `agenda_http_request_duration_milliseconds_sum{method="POST",path="/events"} 42`) {
		t.Errorf("duration sum missing or wrong:\n%s", out)
	}
	if !strings.Contains(out, `agenda_http_request_duration_milliseconds_count{method="POST",path="/events"} 1`) {
		t.Errorf("duration count missing or wrong:\n%s", out)
	}
}

func TestHandler_SkipsEmptyLabelledFamilies(t *testing.T) {
	reg := &metrics.Registry{}
	out := render(t, reg)

	if strings.Contains(out, "agenda_http_requests_total") {
		t.Error("empty HTTP request family should not be rendered")
	}
	// Unlabelled scalars always appear, even at zero.
	if !strings.Contains(out, "agenda_events_scheduled_total 0") {
		t.Error("scalar counters must render at zero")
	}
}

func TestHandler_ContentType(t *testing.T) {
	reg := &metrics.Registry{}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rr, req)

	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Errorf("Content-Type = %q, want Prometheus text format", ct)
	}
}
