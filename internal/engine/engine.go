package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/content"
	"github.com/IshaanNene/CommentGoat/internal/observability"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/pipeline"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// State is a step of the per-page extraction flow.
type State int32

const (
	StateFetching State = iota
	StatePatternMatching
	StateAnalyzing
	StateSuccess
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StatePatternMatching:
		return "PATTERN_MATCHING"
	case StateAnalyzing:
		return "ANALYZING"
	case StateSuccess:
		return "SUCCESS"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Fetcher retrieves post pages, cheaply first and rendered as a fallback.
type Fetcher interface {
	FetchLight(ctx context.Context, url string) (string, error)
	FetchRendered(ctx context.Context, url string, s types.Session, opts types.RenderOptions) (string, error)
}

// SessionProvider opens and closes rendering sessions.
type SessionProvider interface {
	OpenSession(ctx context.Context) (types.Session, error)
	CloseSession(s types.Session) error
}

// ContentAnalyzer extracts comments from normalized page content.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, content string) ([]types.Comment, error)
}

// PatternRunner applies stored patterns to a fetched page.
type PatternRunner interface {
	TryPatterns(ctx context.Context, content, url string) ([]types.Comment, error)
}

// PatternRecorder stores newly learned patterns.
type PatternRecorder interface {
	AddPattern(urlPattern string, data patterns.ExtractionData) string
}

// SelectorLearner derives a reusable selector pattern from comments the
// analyzer found in html.
type SelectorLearner interface {
	Learn(html string, comments []types.Comment) (patterns.ExtractionData, error)
}

// Components are the collaborators the engine orchestrates. Sessions,
// Learner, Normalizer, Pipeline, Metrics and Checkpoints are optional.
// Pipeline cleans analyzer output and should be the one the Runner uses.
type Components struct {
	Fetcher     Fetcher
	Sessions    SessionProvider
	Runner      PatternRunner
	Patterns    PatternRecorder
	Analyzer    ContentAnalyzer
	Normalizer  *content.Normalizer
	Pipeline    *pipeline.Pipeline
	Learner     SelectorLearner
	Metrics     *observability.Metrics
	Checkpoints *CheckpointManager
}

// Engine is the adaptive comment extraction orchestrator. It tries stored
// patterns first and falls back to content analysis, learning a new
// pattern whenever the analyzer succeeds.
type Engine struct {
	cfg            config.EngineConfig
	analyzeTimeout time.Duration
	logger         *slog.Logger

	fetcher     Fetcher
	sessions    SessionProvider
	runner      PatternRunner
	patterns    PatternRecorder
	analyzer    ContentAnalyzer
	normalizer  *content.Normalizer
	pipeline    *pipeline.Pipeline
	learner     SelectorLearner
	metrics     *observability.Metrics
	checkpoints *CheckpointManager

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onState func(url string, s State)
}

// New creates an Engine. Fetcher, Runner, Patterns and Analyzer are required.
func New(cfg *config.Config, c Components, logger *slog.Logger) (*Engine, error) {
	switch {
	case c.Fetcher == nil:
		return nil, errors.New("engine: fetcher is required")
	case c.Runner == nil:
		return nil, errors.New("engine: pattern runner is required")
	case c.Patterns == nil:
		return nil, errors.New("engine: pattern recorder is required")
	case c.Analyzer == nil:
		return nil, errors.New("engine: content analyzer is required")
	}

	e := &Engine{
		cfg:            cfg.Engine,
		analyzeTimeout: cfg.AI.Timeout,
		logger:         logger.With("component", "engine"),
		fetcher:        c.Fetcher,
		sessions:       c.Sessions,
		runner:         c.Runner,
		patterns:       c.Patterns,
		analyzer:       c.Analyzer,
		normalizer:     c.Normalizer,
		pipeline:       c.Pipeline,
		learner:        c.Learner,
		metrics:        c.Metrics,
		checkpoints:    c.Checkpoints,
		now:            time.Now,
		sleep:          sleepContext,
	}
	if e.normalizer == nil {
		e.normalizer = content.NewNormalizer(cfg.AI.MaxInputChars)
	}
	if e.pipeline == nil {
		e.pipeline = pipeline.Default(logger)
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetrics(logger)
	}
	return e, nil
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// ScrapeComments extracts up to maxComments comments from one post page.
// The error is non-nil only for invalid input or caller cancellation; a
// page that cannot be fetched or analyzed yields an empty slice.
func (e *Engine) ScrapeComments(ctx context.Context, url string, maxComments int) ([]types.Comment, error) {
	return e.scrapePage(ctx, e.logger.With("run_id", uuid.NewString()), url, maxComments)
}

// ScrapeMultiple processes urls sequentially, pausing between pages.
// Every input URL gets an entry, in input order. On cancellation the
// results collected so far are returned with ctx.Err().
func (e *Engine) ScrapeMultiple(ctx context.Context, urls []string, maxComments int) ([]types.PageResult, error) {
	if maxComments <= 0 {
		return nil, types.ErrInvalidMax
	}

	runID := uuid.NewString()
	results := make([]types.PageResult, 0, len(urls))
	if cp := e.resume(urls, maxComments); cp != nil {
		runID = cp.RunID
		results = append(results, cp.Results...)
	}
	logger := e.logger.With("run_id", runID)
	logger.Info("batch starting", "pages", len(urls), "resumed", len(results), "max_comments", maxComments)

	start := e.now()
	for i := len(results); i < len(urls); i++ {
		url := urls[i]
		comments, err := e.scrapePage(ctx, logger, url, maxComments)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			logger.Warn("page skipped", "url", url, "error", err)
			comments = []types.Comment{}
		}
		results = append(results, types.PageResult{URL: url, Comments: comments})
		e.saveCheckpoint(logger, runID, urls, maxComments, results)

		if i < len(urls)-1 && e.cfg.InterPagePause > 0 {
			logger.Debug("pausing between pages", "pause", e.cfg.InterPagePause)
			if err := e.sleep(ctx, e.cfg.InterPagePause); err != nil {
				return results, err
			}
		}
	}

	if e.checkpoints != nil {
		if err := e.checkpoints.Clean(); err != nil {
			logger.Warn("failed to remove checkpoint", "error", err)
		}
	}

	total := 0
	for _, r := range results {
		total += len(r.Comments)
	}
	logger.Info("batch complete", "pages", len(results), "comments", total, "elapsed", e.now().Sub(start))
	return results, nil
}

func (e *Engine) scrapePage(ctx context.Context, logger *slog.Logger, url string, maxComments int) ([]types.Comment, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, types.ErrInvalidURL
	}
	if maxComments <= 0 {
		return nil, types.ErrInvalidMax
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger = logger.With("url", url)
	logger.Info("scraping comments", "max_comments", maxComments)
	e.metrics.PagesTotal.Add(1)

	e.transition(logger, url, StateFetching)
	page, err := e.fetch(ctx, logger, url)
	if err != nil {
		return nil, err
	}
	if page == "" {
		logger.Error("failed to fetch content")
		return e.finish(logger, url, StateDone, nil, maxComments), nil
	}

	e.transition(logger, url, StatePatternMatching)
	comments, err := e.runner.TryPatterns(ctx, page, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("pattern matching failed", "error", err)
		comments = nil
	}
	if e.sufficient(len(comments), maxComments) {
		e.metrics.PatternHits.Add(1)
		return e.finish(logger, url, StateSuccess, comments, maxComments), nil
	}
	e.metrics.PatternMisses.Add(1)
	logger.Info("stored patterns insufficient, analyzing content", "found", len(comments))

	e.transition(logger, url, StateAnalyzing)
	comments, err = e.analyze(ctx, logger, url, page)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return e.finish(logger, url, StateDone, nil, maxComments), nil
	}
	return e.finish(logger, url, StateSuccess, comments, maxComments), nil
}

// fetch returns the page content, or "" when both tiers came up empty.
// Only caller cancellation is returned as an error. The fetchers apply
// request_timeout themselves once their pacer lets the request through.
func (e *Engine) fetch(ctx context.Context, logger *slog.Logger, url string) (string, error) {
	e.metrics.LightFetches.Add(1)
	page, err := e.fetcher.FetchLight(ctx, url)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err == nil && strings.TrimSpace(page) != "" {
		return page, nil
	}
	e.metrics.LightFetchFailures.Add(1)
	logger.Info("light fetch failed, trying rendered fetch", "error", err)

	if e.sessions == nil {
		logger.Debug("rendered fetch disabled")
		return "", nil
	}

	e.metrics.RenderedFetches.Add(1)
	page, err = e.fetchRendered(ctx, logger, url)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil || strings.TrimSpace(page) == "" {
		e.metrics.RenderedFetchFailures.Add(1)
		logger.Warn("rendered fetch failed", "error", err)
		return "", nil
	}
	return page, nil
}

func (e *Engine) fetchRendered(ctx context.Context, logger *slog.Logger, url string) (string, error) {
	sess, err := e.sessions.OpenSession(ctx)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := e.sessions.CloseSession(sess); err != nil {
			logger.Warn("failed to close session", "session", sess.ID(), "error", err)
		}
	}()

	return e.fetcher.FetchRendered(ctx, url, sess, types.RenderOptions{ScrollForMore: true})
}

// analyze runs the content analyzer, cleans its output and records a
// pattern for a non-empty result. Analyzer errors and timeouts count as an
// empty result.
func (e *Engine) analyze(ctx context.Context, logger *slog.Logger, url, page string) ([]types.Comment, error) {
	normalized := e.normalizer.Normalize(page)

	e.metrics.AnalyzerCalls.Add(1)
	actx, cancel := e.withTimeout(ctx, e.analyzeTimeout)
	comments, err := e.analyzer.Analyze(actx, normalized)
	cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		e.metrics.AnalyzerFailures.Add(1)
		logger.Warn("content analysis failed", "error", err)
		return nil, nil
	}
	comments = e.pipeline.Apply(comments)
	if len(comments) == 0 {
		logger.Info("content analysis found no comments")
		return nil, nil
	}

	id := e.patterns.AddPattern(url, patterns.ExtractionData{
		ExtractionMethod: patterns.MethodContentAnalysis,
		Timestamp:        e.now().Format(time.RFC3339),
		SampleResult:     types.Sample(comments, 2),
	})
	e.metrics.PatternsLearned.Add(1)
	logger.Info("learned pattern from content analysis", "pattern", id, "comments", len(comments))

	if e.learner != nil {
		data, err := e.learner.Learn(page, comments)
		if err != nil {
			logger.Debug("no selector learned", "error", err)
		} else {
			sid := e.patterns.AddPattern(url, data)
			e.metrics.SelectorsLearned.Add(1)
			logger.Info("learned selector pattern", "pattern", sid, "selectors", data.Selectors)
		}
	}
	return comments, nil
}

// sufficient decides whether stored patterns found enough comments to skip
// content analysis.
func (e *Engine) sufficient(found, maxComments int) bool {
	if found == 0 {
		return false
	}
	switch e.cfg.Sufficiency {
	case config.SufficiencyAny:
		return true
	case config.SufficiencyAtLeast:
		return found >= min(max(e.cfg.MinComments, 1), maxComments)
	default:
		return found >= maxComments
	}
}

func (e *Engine) finish(logger *slog.Logger, url string, final State, comments []types.Comment, maxComments int) []types.Comment {
	e.transition(logger, url, final)
	comments = types.Truncate(comments, maxComments)
	if comments == nil {
		comments = []types.Comment{}
	}
	if len(comments) == 0 {
		e.metrics.PagesEmpty.Add(1)
	}
	e.metrics.CommentsExtracted.Add(int64(len(comments)))
	logger.Info("page complete", "state", final, "comments", len(comments))
	return comments
}

func (e *Engine) transition(logger *slog.Logger, url string, s State) {
	logger.Debug("state", "state", s)
	if e.onState != nil {
		e.onState(url, s)
	}
}

func (e *Engine) resume(urls []string, maxComments int) *BatchCheckpoint {
	if e.checkpoints == nil {
		return nil
	}
	cp, err := e.checkpoints.Load()
	if err != nil {
		e.logger.Warn("ignoring unreadable checkpoint", "error", err)
		return nil
	}
	if cp == nil || !cp.Matches(urls, maxComments) {
		return nil
	}
	e.logger.Info("resuming batch from checkpoint", "run_id", cp.RunID, "completed", len(cp.Results))
	return cp
}

func (e *Engine) saveCheckpoint(logger *slog.Logger, runID string, urls []string, maxComments int, results []types.PageResult) {
	if e.checkpoints == nil {
		return
	}
	cp := &BatchCheckpoint{
		RunID:       runID,
		Timestamp:   e.now(),
		MaxComments: maxComments,
		URLs:        urls,
		Results:     results,
	}
	if err := e.checkpoints.Save(cp); err != nil {
		logger.Warn("checkpoint save failed", "error", err)
	}
}

func (e *Engine) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
