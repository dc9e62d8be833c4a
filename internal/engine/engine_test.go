package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/pipeline"
	"github.com/IshaanNene/CommentGoat/internal/strategy"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const postPage = `<html><body><div class="thread">
<div class="c-item"><span class="author">Ann</span> <p class="body">First comment here</p> <span class="time">2h</span></div>
<div class="c-item"><span class="author">Bob</span> <p class="body">Second one, agreed</p> <span class="time">3h</span></div>
<div class="c-item"><span class="author">Cy</span> <p class="body">Third and final word</p> <span class="time">5h</span></div>
</div></body></html>`

var pageComments = []types.Comment{
	{Text: "First comment here"},
	{Text: "Second one, agreed"},
	{Text: "Third and final word"},
}

// --- fakes ---

type fakeFetcher struct {
	light       map[string]string
	lightErr    error
	rendered    map[string]string
	renderedErr error

	lightCalls    []string
	renderedCalls []string
	renderOpts    []types.RenderOptions
	onLight       func()
}

func (f *fakeFetcher) FetchLight(ctx context.Context, url string) (string, error) {
	f.lightCalls = append(f.lightCalls, url)
	if f.onLight != nil {
		f.onLight()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.lightErr != nil {
		return "", f.lightErr
	}
	return f.light[url], nil
}

func (f *fakeFetcher) FetchRendered(ctx context.Context, url string, s types.Session, opts types.RenderOptions) (string, error) {
	f.renderedCalls = append(f.renderedCalls, url)
	f.renderOpts = append(f.renderOpts, opts)
	if s == nil {
		return "", types.ErrNoSession
	}
	if f.renderedErr != nil {
		return "", f.renderedErr
	}
	return f.rendered[url], nil
}

type fakeSession string

func (s fakeSession) ID() string { return string(s) }

type fakeSessions struct {
	openErr error
	opened  int
	closed  int
}

func (p *fakeSessions) OpenSession(context.Context) (types.Session, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opened++
	return fakeSession(fmt.Sprintf("s%d", p.opened)), nil
}

func (p *fakeSessions) CloseSession(types.Session) error {
	p.closed++
	return nil
}

type fakeAnalyzer struct {
	comments []types.Comment
	err      error
	block    bool
	onCall   func()
	calls    int
	inputs   []string
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, content string) ([]types.Comment, error) {
	a.calls++
	a.inputs = append(a.inputs, content)
	if a.onCall != nil {
		a.onCall()
	}
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return a.comments, a.err
}

type harness struct {
	engine   *Engine
	fetcher  *fakeFetcher
	sessions *fakeSessions
	analyzer *fakeAnalyzer
	store    *patterns.Store
	states   []State
	pauses   []time.Duration
}

type harnessOption func(cfg *config.Config, c *Components)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	h := &harness{
		fetcher:  &fakeFetcher{light: map[string]string{}, rendered: map[string]string{}},
		sessions: &fakeSessions{},
		analyzer: &fakeAnalyzer{},
	}

	h.store = patterns.NewStore(patterns.NewFileBackend(filepath.Join(t.TempDir(), "patterns.json")), testLogger)
	h.store.Load()

	registry := strategy.NewRegistry(testLogger, strategy.NewSelectorExtractor(), strategy.NewXPathExtractor())
	pipe := pipeline.Default(testLogger)
	c := Components{
		Fetcher:  h.fetcher,
		Sessions: h.sessions,
		Runner:   strategy.NewRunner(h.store, registry, pipe, testLogger),
		Patterns: h.store,
		Analyzer: h.analyzer,
		Pipeline: pipe,
	}
	for _, opt := range opts {
		opt(cfg, &c)
	}

	e, err := New(cfg, c, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.onState = func(_ string, s State) { h.states = append(h.states, s) }
	e.sleep = func(ctx context.Context, d time.Duration) error {
		h.pauses = append(h.pauses, d)
		return ctx.Err()
	}
	h.engine = e
	return h
}

func (h *harness) addSelectorPattern(urlPattern string) string {
	return h.store.AddPattern(urlPattern, patterns.ExtractionData{
		ExtractionMethod: patterns.MethodSelector,
		Selectors:        []string{"div.c-item p.body"},
	})
}

func fiveComments() []types.Comment {
	out := make([]types.Comment, 5)
	for i := range out {
		out[i] = types.Comment{Text: fmt.Sprintf("comment %d", i+1), Timestamp: "1h"}
	}
	return out
}

const postURL = "https://www.facebook.com/groups/1/posts/42"

// --- tests ---

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateFetching:        "FETCHING",
		StatePatternMatching: "PATTERN_MATCHING",
		StateAnalyzing:       "ANALYZING",
		StateSuccess:         "SUCCESS",
		StateDone:            "DONE",
		State(99):            "UNKNOWN",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), name)
		}
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(config.DefaultConfig(), Components{}, testLogger); err == nil {
		t.Error("expected error without collaborators")
	}
}

func TestScrapeCommentsLearnsPatternFromAnalysis(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	h.analyzer.comments = fiveComments()

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 3)
	if err != nil {
		t.Fatalf("ScrapeComments: %v", err)
	}
	if diff := cmp.Diff(fiveComments()[:3], got); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}

	all := h.store.All()
	if len(all) != 1 {
		t.Fatalf("expected exactly one new pattern, got %d", len(all))
	}
	p := all[0]
	if p.SuccessCount != 1 || p.FailureCount != 0 || p.SuccessRate != 1.0 {
		t.Errorf("counters = %d/%d rate %v", p.SuccessCount, p.FailureCount, p.SuccessRate)
	}
	if p.URLPattern != postURL || p.Method() != patterns.MethodContentAnalysis {
		t.Errorf("pattern = %+v", p)
	}
	if diff := cmp.Diff(fiveComments()[:2], p.ExtractionData.SampleResult); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
	if _, err := time.Parse(time.RFC3339, p.ExtractionData.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", p.ExtractionData.Timestamp, err)
	}

	wantStates := []State{StateFetching, StatePatternMatching, StateAnalyzing, StateSuccess}
	if diff := cmp.Diff(wantStates, h.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if len(h.fetcher.renderedCalls) != 0 || h.sessions.opened != 0 {
		t.Error("rendered tier should not run when the light fetch succeeds")
	}
}

func TestScrapeCommentsAnalyzerSeesNormalizedContent(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = `<html><head><script>var x = 1;</script></head><body><p>Visible text</p></body></html>`

	if _, err := h.engine.ScrapeComments(context.Background(), postURL, 5); err != nil {
		t.Fatal(err)
	}
	if h.analyzer.calls != 1 {
		t.Fatalf("analyzer calls = %d", h.analyzer.calls)
	}
	in := h.analyzer.inputs[0]
	if !strings.Contains(in, "Visible text") || strings.Contains(in, "var x") {
		t.Errorf("analyzer input not normalized: %q", in)
	}
}

func TestScrapeCommentsCleansAnalyzerOutput(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	h.analyzer.comments = []types.Comment{
		{Text: "Count me in &amp; more Like", Timestamp: "2024-01-05"},
		{Text: "Like"},
		{Text: "Second <b>bold</b> take", Timestamp: "3h"},
	}

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Comment{
		{Text: "Count me in & more", Timestamp: "2024-01-05T00:00:00Z"},
		{Text: "Second bold take", Timestamp: "3h"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}

	all := h.store.All()
	if len(all) != 1 {
		t.Fatalf("patterns = %d, want 1", len(all))
	}
	if diff := cmp.Diff(want, all[0].ExtractionData.SampleResult); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeCommentsChromeOnlyAnalysisLearnsNothing(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	h.analyzer.comments = []types.Comment{{Text: "Like"}, {Text: "  Reply "}, {Text: "<br>"}}

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v; want empty result", got, err)
	}
	if h.store.Len() != 0 {
		t.Errorf("no pattern should be stored, have %d", h.store.Len())
	}
	if diff := cmp.Diff([]State{StateFetching, StatePatternMatching, StateAnalyzing, StateDone}, h.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeCommentsFetchNotBoundByRequestTimeout(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config, _ *Components) { cfg.Engine.RequestTimeout = 20 * time.Millisecond })
	h.fetcher.light[postURL] = postPage
	h.analyzer.comments = fiveComments()
	// A fetcher pacing longer than request_timeout before it sends.
	h.fetcher.onLight = func() { time.Sleep(60 * time.Millisecond) }

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("comments = %d, want 3", len(got))
	}
	if len(h.fetcher.renderedCalls) != 0 {
		t.Error("light fetch should not have timed out")
	}
}

func TestScrapeCommentsStoredPatternSuffices(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	id := h.addSelectorPattern("facebook.com/groups/1")

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pageComments, got); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
	if h.analyzer.calls != 0 {
		t.Errorf("analyzer called %d times, want 0", h.analyzer.calls)
	}
	p, _ := h.store.Get(id)
	if p.SuccessCount != 2 || p.FailureCount != 0 {
		t.Errorf("pattern counters = %d/%d, want 2/0", p.SuccessCount, p.FailureCount)
	}
	wantStates := []State{StateFetching, StatePatternMatching, StateSuccess}
	if diff := cmp.Diff(wantStates, h.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeCommentsTruncatesPatternResult(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	h.addSelectorPattern("facebook.com")

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pageComments[:2], got); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestSufficiencyRules(t *testing.T) {
	tests := []struct {
		name         string
		sufficiency  string
		minComments  int
		wantAnalyzer int
	}{
		{"max falls back below requested count", config.SufficiencyMax, 1, 1},
		{"any accepts a partial result", config.SufficiencyAny, 1, 0},
		{"at_least met", config.SufficiencyAtLeast, 2, 0},
		{"at_least not met", config.SufficiencyAtLeast, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(cfg *config.Config, _ *Components) {
				cfg.Engine.Sufficiency = tt.sufficiency
				cfg.Engine.MinComments = tt.minComments
			})
			h.fetcher.light[postURL] = postPage
			h.addSelectorPattern("facebook.com")
			h.analyzer.comments = fiveComments()

			got, err := h.engine.ScrapeComments(context.Background(), postURL, 10)
			if err != nil {
				t.Fatal(err)
			}
			if h.analyzer.calls != tt.wantAnalyzer {
				t.Errorf("analyzer calls = %d, want %d", h.analyzer.calls, tt.wantAnalyzer)
			}
			wantLen := 3
			if tt.wantAnalyzer > 0 {
				wantLen = 5
			}
			if len(got) != wantLen {
				t.Errorf("got %d comments, want %d", len(got), wantLen)
			}
		})
	}
}

func TestScrapeCommentsRenderedFallback(t *testing.T) {
	h := newHarness(t)
	h.fetcher.lightErr = errors.New("HTTP 403")
	h.fetcher.rendered[postURL] = postPage
	h.addSelectorPattern("facebook.com")

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("got %d comments, want 3", len(got))
	}
	if h.sessions.opened != 1 || h.sessions.closed != 1 {
		t.Errorf("sessions opened/closed = %d/%d, want 1/1", h.sessions.opened, h.sessions.closed)
	}
	if len(h.fetcher.renderOpts) != 1 || !h.fetcher.renderOpts[0].ScrollForMore {
		t.Errorf("rendered fetch should scroll for more comments: %+v", h.fetcher.renderOpts)
	}
}

func TestScrapeCommentsBlankLightPageFallsBack(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = "   "
	h.fetcher.rendered[postURL] = postPage
	h.analyzer.comments = pageComments

	if _, err := h.engine.ScrapeComments(context.Background(), postURL, 3); err != nil {
		t.Fatal(err)
	}
	if len(h.fetcher.renderedCalls) != 1 {
		t.Errorf("expected rendered fallback for a blank page")
	}
}

func TestScrapeCommentsBothTiersFail(t *testing.T) {
	h := newHarness(t)
	h.fetcher.lightErr = errors.New("timeout")
	h.fetcher.renderedErr = errors.New("navigation failed")

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}
	if h.analyzer.calls != 0 {
		t.Error("analyzer must not run without content")
	}
	if h.sessions.closed != h.sessions.opened {
		t.Error("session leaked")
	}
	if diff := cmp.Diff([]State{StateFetching, StateDone}, h.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeCommentsSessionOpenFails(t *testing.T) {
	h := newHarness(t)
	h.fetcher.lightErr = errors.New("blocked")
	h.sessions.openErr = errors.New("chromium not found")

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty result", got, err)
	}
	if len(h.fetcher.renderedCalls) != 0 {
		t.Error("rendered fetch must not run without a session")
	}
}

func TestScrapeCommentsRenderedTierDisabled(t *testing.T) {
	h := newHarness(t, func(_ *config.Config, c *Components) { c.Sessions = nil })
	h.fetcher.lightErr = errors.New("blocked")

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty result", got, err)
	}
	if len(h.fetcher.renderedCalls) != 0 {
		t.Error("rendered tier should be disabled")
	}
}

func TestScrapeCommentsAnalyzerFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	h.analyzer.err = &types.AnalysisError{Stage: "parse", Err: errors.New("no JSON array")}

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty result", got, err)
	}
	if h.store.Len() != 0 {
		t.Errorf("no pattern should be stored, have %d", h.store.Len())
	}
	if h.engine.Metrics().AnalyzerFailures.Load() != 1 {
		t.Error("analyzer failure not counted")
	}
	if diff := cmp.Diff([]State{StateFetching, StatePatternMatching, StateAnalyzing, StateDone}, h.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeCommentsAnalyzerTimeoutIsEmptyResult(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config, _ *Components) { cfg.AI.Timeout = 20 * time.Millisecond })
	h.fetcher.light[postURL] = postPage
	h.analyzer.block = true

	got, err := h.engine.ScrapeComments(context.Background(), postURL, 5)
	if err != nil {
		t.Fatalf("timeout should not propagate, got %v", err)
	}
	if len(got) != 0 || h.store.Len() != 0 {
		t.Errorf("got %d comments and %d patterns, want none", len(got), h.store.Len())
	}
}

func TestScrapeCommentsCancelledDuringAnalysis(t *testing.T) {
	h := newHarness(t)
	h.fetcher.light[postURL] = postPage
	id := h.addSelectorPattern("no-match.example")
	h.addSelectorPattern("facebook.com/groups/1/posts/42")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.analyzer.block = true
	h.analyzer.onCall = cancel

	before := h.store.All()
	_, err := h.engine.ScrapeComments(ctx, postURL, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.store.Len() != len(before) {
		t.Errorf("pattern added despite cancellation")
	}
	if p, _ := h.store.Get(id); p.SuccessCount != 1 || p.FailureCount != 0 {
		t.Errorf("unrelated pattern touched: %+v", p)
	}
}

func TestScrapeCommentsCancelledDuringFetch(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.fetcher.onLight = cancel

	_, err := h.engine.ScrapeComments(ctx, postURL, 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.fetcher.renderedCalls) != 0 || h.analyzer.calls != 0 {
		t.Error("cancellation should stop the flow")
	}
}

func TestScrapeCommentsInvalidInput(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.ScrapeComments(context.Background(), "  ", 5); !errors.Is(err, types.ErrInvalidURL) {
		t.Errorf("empty url: got %v", err)
	}
	if _, err := h.engine.ScrapeComments(context.Background(), postURL, 0); !errors.Is(err, types.ErrInvalidMax) {
		t.Errorf("max 0: got %v", err)
	}
	if _, err := h.engine.ScrapeMultiple(context.Background(), []string{postURL}, -1); !errors.Is(err, types.ErrInvalidMax) {
		t.Errorf("batch max -1: got %v", err)
	}
	if len(h.fetcher.lightCalls) != 0 {
		t.Error("invalid input must not fetch")
	}
}

func TestScrapeMultipleOrderAndPauses(t *testing.T) {
	h := newHarness(t)
	urls := []string{
		"https://www.facebook.com/a/posts/1",
		"https://www.facebook.com/b/posts/2",
		"https://www.facebook.com/a/posts/1",
	}
	for _, u := range urls {
		h.fetcher.light[u] = postPage
	}
	h.addSelectorPattern("facebook.com")

	results, err := h.engine.ScrapeMultiple(context.Background(), urls, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(urls) {
		t.Fatalf("got %d results, want %d", len(results), len(urls))
	}
	for i, r := range results {
		if r.URL != urls[i] || len(r.Comments) != 2 {
			t.Errorf("result %d = %s with %d comments", i, r.URL, len(r.Comments))
		}
	}
	want := []time.Duration{2 * time.Second, 2 * time.Second}
	if diff := cmp.Diff(want, h.pauses); diff != "" {
		t.Errorf("pauses mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeMultipleContinuesAfterFailedPage(t *testing.T) {
	h := newHarness(t, func(_ *config.Config, c *Components) { c.Sessions = nil })
	good := "https://www.facebook.com/good/posts/2"
	h.fetcher.light[good] = postPage
	h.addSelectorPattern("facebook.com/good")

	results, err := h.engine.ScrapeMultiple(context.Background(), []string{"https://www.facebook.com/down/posts/1", "", good}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if len(results[0].Comments) != 0 || len(results[1].Comments) != 0 {
		t.Errorf("failed pages should have empty entries: %+v", results[:2])
	}
	if len(results[2].Comments) != 3 {
		t.Errorf("good page got %d comments", len(results[2].Comments))
	}
}

func TestScrapeMultipleCancelledReturnsPartial(t *testing.T) {
	h := newHarness(t)
	urls := []string{"https://www.facebook.com/1", "https://www.facebook.com/2", "https://www.facebook.com/3"}
	for _, u := range urls {
		h.fetcher.light[u] = postPage
	}
	h.addSelectorPattern("facebook.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	results, err := h.engine.ScrapeMultiple(ctx, urls, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 1 || results[0].URL != urls[0] {
		t.Errorf("expected the first page only, got %+v", results)
	}
}

func TestScrapeMultipleResumesFromCheckpoint(t *testing.T) {
	cm := NewCheckpointManager(t.TempDir())
	h := newHarness(t, func(_ *config.Config, c *Components) { c.Checkpoints = cm })
	urls := []string{"https://www.facebook.com/1", "https://www.facebook.com/2"}
	h.fetcher.light[urls[1]] = postPage
	h.addSelectorPattern("facebook.com")

	done := types.PageResult{URL: urls[0], Comments: []types.Comment{{Text: "from earlier run"}}}
	if err := cm.Save(&BatchCheckpoint{RunID: "run-1", MaxComments: 3, URLs: urls, Results: []types.PageResult{done}}); err != nil {
		t.Fatal(err)
	}

	results, err := h.engine.ScrapeMultiple(context.Background(), urls, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{urls[1]}, h.fetcher.lightCalls); diff != "" {
		t.Errorf("fetched pages mismatch (-want +got):\n%s", diff)
	}
	if len(results) != 2 || results[0].Comments[0].Text != "from earlier run" || len(results[1].Comments) != 3 {
		t.Errorf("unexpected results: %+v", results)
	}
	if cm.HasCheckpoint() {
		t.Error("checkpoint should be removed after a complete batch")
	}
}

func TestScrapeMultipleIgnoresForeignCheckpoint(t *testing.T) {
	cm := NewCheckpointManager(t.TempDir())
	h := newHarness(t, func(_ *config.Config, c *Components) { c.Checkpoints = cm })
	urls := []string{"https://www.facebook.com/1"}
	h.fetcher.light[urls[0]] = postPage
	h.addSelectorPattern("facebook.com")

	other := &BatchCheckpoint{RunID: "old", MaxComments: 3, URLs: []string{"https://elsewhere"}, Results: []types.PageResult{{URL: "https://elsewhere"}}}
	if err := cm.Save(other); err != nil {
		t.Fatal(err)
	}

	results, err := h.engine.ScrapeMultiple(context.Background(), urls, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].URL != urls[0] {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestSelectorLearningReusesDOMPattern(t *testing.T) {
	h := newHarness(t, func(_ *config.Config, c *Components) {
		c.Learner = strategy.NewSelectorLearner(testLogger)
	})
	h.fetcher.light[postURL] = postPage
	h.analyzer.comments = pageComments

	if _, err := h.engine.ScrapeComments(context.Background(), postURL, 3); err != nil {
		t.Fatal(err)
	}
	all := h.store.All()
	if len(all) != 2 {
		t.Fatalf("expected content-analysis and selector patterns, got %d", len(all))
	}
	if all[1].Method() != patterns.MethodSelector || len(all[1].ExtractionData.Selectors) == 0 {
		t.Errorf("second pattern = %+v", all[1])
	}

	// The next visit is served by the learned selector.
	got, err := h.engine.ScrapeComments(context.Background(), postURL, 3)
	if err != nil {
		t.Fatal(err)
	}
	if h.analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1", h.analyzer.calls)
	}
	if diff := cmp.Diff(pageComments, got); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckpointManagerRoundTrip(t *testing.T) {
	cm := NewCheckpointManager(filepath.Join(t.TempDir(), "nested"))
	if cp, err := cm.Load(); cp != nil || err != nil {
		t.Fatalf("empty Load = %v, %v", cp, err)
	}

	want := &BatchCheckpoint{
		RunID:       "r",
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		MaxComments: 7,
		URLs:        []string{"u1", "u2"},
		Results:     []types.PageResult{{URL: "u1", Comments: []types.Comment{{Text: "x", Timestamp: "1h"}}}},
	}
	if err := cm.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := cm.Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("checkpoint mismatch (-want +got):\n%s", diff)
	}
	if !got.Matches([]string{"u1", "u2"}, 7) || got.Matches([]string{"u1", "u2"}, 8) || got.Matches([]string{"u2", "u1"}, 7) {
		t.Error("Matches gave an unexpected answer")
	}
	if err := cm.Clean(); err != nil || cm.HasCheckpoint() {
		t.Errorf("Clean: %v, still present %v", err, cm.HasCheckpoint())
	}
}
