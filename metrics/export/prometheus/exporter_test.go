package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	goCred "github.com/MrEthical07/goCred"
)

type fakeSource struct {
	counters map[goCred.MetricID]uint64
	dropped  uint64
}

func (s *fakeSource) MetricsSnapshot() goCred.MetricsSnapshot {
	return goCred.MetricsSnapshot{Counters: s.counters}
}

func (s *fakeSource) AuditDropped() uint64 { return s.dropped }

func TestRenderExposesCounters(t *testing.T) {
	source := &fakeSource{
		counters: map[goCred.MetricID]uint64{
			goCred.MetricTokenIssued:           7,
			goCred.MetricMFAChallengeSuccess:   3,
			goCred.MetricStateRejected:         1,
			goCred.MetricTokenIssueRateLimited: 0,
		},
		dropped: 2,
	}

	out := NewPrometheusExporterFromSource(source).Render()

	expected := []string{
		"# TYPE gocred_token_issued_total counter",
		"gocred_token_issued_total 7",
		"gocred_mfa_challenge_success_total 3",
		"gocred_oauth_state_rejected_total 1",
		"gocred_token_issue_rate_limited_total 0",
		"gocred_audit_dropped_total 2",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			t.Fatal("blank line in exposition output")
		}
	}
}

func TestRenderEmptySource(t *testing.T) {
	source := &fakeSource{counters: map[goCred.MetricID]uint64{}}
	if out := NewPrometheusExporterFromSource(source).Render(); out != "" {
		t.Fatalf("expected empty render, got:\n%s", out)
	}

	var nilExporter *PrometheusExporter
	if out := nilExporter.Render(); out != "" {
		t.Fatalf("nil exporter must render nothing, got:\n%s", out)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	source := &fakeSource{
		counters: map[goCred.MetricID]uint64{goCred.MetricTokenConsumed: 5},
	}
	handler := NewPrometheusExporterFromSource(source).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "gocred_token_consumed_total 5") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
