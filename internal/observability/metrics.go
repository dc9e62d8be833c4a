package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Metrics tracks operational counters for comment extraction runs.
type Metrics struct {
	// Page metrics
	PagesTotal        atomic.Int64
	PagesEmpty        atomic.Int64
	CommentsExtracted atomic.Int64

	// Fetch metrics
	LightFetches          atomic.Int64
	LightFetchFailures    atomic.Int64
	RenderedFetches       atomic.Int64
	RenderedFetchFailures atomic.Int64

	// Pattern metrics
	PatternHits      atomic.Int64
	PatternMisses    atomic.Int64
	PatternsLearned  atomic.Int64
	SelectorsLearned atomic.Int64

	// Analyzer metrics
	AnalyzerCalls    atomic.Int64
	AnalyzerFailures atomic.Int64

	mu        sync.RWMutex
	rateDelay func() time.Duration

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// TrackRateDelay exposes the pacer's current delay as a gauge.
func (m *Metrics) TrackRateDelay(fn func() time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateDelay = fn
}

func (m *Metrics) currentRateDelay() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rateDelay == nil {
		return 0
	}
	return m.rateDelay()
}

type metric struct {
	name  string
	help  string
	kind  string
	value float64
}

func (m *Metrics) collect() []metric {
	return []metric{
		{"commentgoat_pages_total", "Total pages processed", "counter", float64(m.PagesTotal.Load())},
		{"commentgoat_pages_empty_total", "Pages that produced no comments", "counter", float64(m.PagesEmpty.Load())},
		{"commentgoat_comments_extracted_total", "Total comments returned", "counter", float64(m.CommentsExtracted.Load())},
		{"commentgoat_light_fetches_total", "Light fetch attempts", "counter", float64(m.LightFetches.Load())},
		{"commentgoat_light_fetch_failures_total", "Light fetches without content", "counter", float64(m.LightFetchFailures.Load())},
		{"commentgoat_rendered_fetches_total", "Rendered fetch attempts", "counter", float64(m.RenderedFetches.Load())},
		{"commentgoat_rendered_fetch_failures_total", "Rendered fetches without content", "counter", float64(m.RenderedFetchFailures.Load())},
		{"commentgoat_pattern_hits_total", "Pages served by a stored pattern", "counter", float64(m.PatternHits.Load())},
		{"commentgoat_pattern_misses_total", "Pages where stored patterns were insufficient", "counter", float64(m.PatternMisses.Load())},
		{"commentgoat_patterns_learned_total", "Patterns added after content analysis", "counter", float64(m.PatternsLearned.Load())},
		{"commentgoat_selectors_learned_total", "Selector patterns derived from analyzer output", "counter", float64(m.SelectorsLearned.Load())},
		{"commentgoat_analyzer_calls_total", "Content analyzer calls", "counter", float64(m.AnalyzerCalls.Load())},
		{"commentgoat_analyzer_failures_total", "Content analyzer errors", "counter", float64(m.AnalyzerFailures.Load())},
		{"commentgoat_rate_delay_seconds", "Current adaptive request delay", "gauge", m.currentRateDelay().Seconds()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, mt := range m.collect() {
		fmt.Fprintf(w, "# HELP %s %s\n", mt.name, mt.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", mt.name, mt.kind)
		fmt.Fprintf(w, "%s %g\n", mt.name, mt.value)
	}
}

// Router returns a chi router serving metrics at path and a /health probe.
func (m *Metrics) Router(path string) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, path, m)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return r
}

// StartServer serves the metrics router until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           m.Router(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_total":             m.PagesTotal.Load(),
		"pages_empty":             m.PagesEmpty.Load(),
		"comments_extracted":      m.CommentsExtracted.Load(),
		"light_fetches":           m.LightFetches.Load(),
		"light_fetch_failures":    m.LightFetchFailures.Load(),
		"rendered_fetches":        m.RenderedFetches.Load(),
		"rendered_fetch_failures": m.RenderedFetchFailures.Load(),
		"pattern_hits":            m.PatternHits.Load(),
		"pattern_misses":          m.PatternMisses.Load(),
		"patterns_learned":        m.PatternsLearned.Load(),
		"selectors_learned":       m.SelectorsLearned.Load(),
		"analyzer_calls":          m.AnalyzerCalls.Load(),
		"analyzer_failures":       m.AnalyzerFailures.Load(),
	}
}
