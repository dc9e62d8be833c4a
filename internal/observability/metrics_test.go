package observability

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PagesTotal.Add(3)
	m.CommentsExtracted.Add(42)
	m.PatternHits.Add(1)
	m.TrackRateDelay(func() time.Duration { return 1500 * time.Millisecond })

	srv := httptest.NewServer(m.Router("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{
		"commentgoat_pages_total 3",
		"commentgoat_comments_extracted_total 42",
		"commentgoat_pattern_hits_total 1",
		"# TYPE commentgoat_rate_delay_seconds gauge",
		"commentgoat_rate_delay_seconds 1.5",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewMetrics(testLogger).Router(""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}

	resp2, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("default metrics path not served: %d", resp2.StatusCode)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger)
	m.AnalyzerCalls.Add(2)
	m.AnalyzerFailures.Add(1)

	snap := m.Snapshot()
	if snap["analyzer_calls"] != 2 || snap["analyzer_failures"] != 1 {
		t.Errorf("snapshot = %v", snap)
	}
	if snap["pages_total"] != 0 {
		t.Errorf("pages_total = %d", snap["pages_total"])
	}
}
