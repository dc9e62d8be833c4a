// Package commentgoat provides a public SDK for embedding CommentGoat as a library.
//
// Example usage:
//
//	s, err := commentgoat.New(
//	    commentgoat.WithMaxComments(50),
//	    commentgoat.WithLLM("gemini", "gemini-1.5-flash", os.Getenv("GEMINI_API_KEY")),
//	    commentgoat.WithPatternStore("sqlite", "patterns.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	comments, err := s.ScrapeComments(ctx, "https://www.facebook.com/groups/1/posts/2", 50)
package commentgoat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/ai"
	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/content"
	"github.com/IshaanNene/CommentGoat/internal/engine"
	"github.com/IshaanNene/CommentGoat/internal/fetcher"
	"github.com/IshaanNene/CommentGoat/internal/observability"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/pipeline"
	"github.com/IshaanNene/CommentGoat/internal/ratelimit"
	"github.com/IshaanNene/CommentGoat/internal/strategy"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

type (
	// Comment is one extracted user comment.
	Comment = types.Comment
	// PageResult pairs a post URL with its comments.
	PageResult = types.PageResult
	// Pattern is a learned extraction strategy.
	Pattern = patterns.Pattern
)

// Option configures a Scraper.
type Option func(*config.Config)

// WithMaxComments sets the default per-post comment limit.
func WithMaxComments(n int) Option {
	return func(c *config.Config) { c.Engine.MaxComments = n }
}

// WithSufficiency sets when stored patterns are considered enough.
func WithSufficiency(rule string) Option {
	return func(c *config.Config) { c.Engine.Sufficiency = rule }
}

// WithInterPagePause sets the pause between batch pages.
func WithInterPagePause(d time.Duration) Option {
	return func(c *config.Config) { c.Engine.InterPagePause = d }
}

// WithProxy enables proxy rotation with the given proxy URLs.
func WithProxy(urls ...string) Option {
	return func(c *config.Config) {
		c.Proxy.Enabled = true
		c.Proxy.URLs = urls
	}
}

// WithoutBrowser disables the rendered fetch tier.
func WithoutBrowser() Option {
	return func(c *config.Config) { c.Browser.Enabled = false }
}

// WithPatternStore selects the pattern backend ("file" or "sqlite") and its path.
func WithPatternStore(backend, path string) Option {
	return func(c *config.Config) {
		c.Patterns.Backend = backend
		c.Patterns.Path = path
	}
}

// WithSelectorLearning derives selector patterns from content analysis results.
func WithSelectorLearning() Option {
	return func(c *config.Config) { c.Patterns.LearnSelectors = true }
}

// WithLLM configures the content analyzer.
func WithLLM(provider, model, apiKey string) Option {
	return func(c *config.Config) {
		c.AI.Provider = provider
		c.AI.Model = model
		c.AI.APIKey = apiKey
	}
}

// WithCheckpointDir sets where batch checkpoints live. An empty dir
// disables checkpointing.
func WithCheckpointDir(dir string) Option {
	return func(c *config.Config) { c.Engine.CheckpointDir = dir }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// Scraper is the high-level API over the adaptive extraction engine.
type Scraper struct {
	cfg         *config.Config
	engine      *engine.Engine
	store       *patterns.Store
	fetch       *fetcher.Tiered
	checkpoints *engine.CheckpointManager
	logger      *slog.Logger
}

// New creates a Scraper from the default configuration plus opts.
func New(opts ...Option) (*Scraper, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return NewFromConfig(cfg, logger)
}

// NewFromConfig wires a Scraper from an already validated config.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	rate := ratelimit.New(cfg.RateLimit, logger)

	var proxies *fetcher.ProxyManager
	if cfg.Proxy.Enabled {
		proxies = fetcher.NewProxyManager(cfg.Proxy, logger)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, rate, proxies, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	tiered := &fetcher.Tiered{HTTP: httpFetcher}

	// A typed nil *BrowserSessions would make the engine attempt rendered fetches.
	var sessions engine.SessionProvider
	if cfg.Browser.Enabled {
		tiered.Browser = fetcher.NewBrowserFetcher(cfg, rate, logger)
		sessions = fetcher.NewBrowserSessions(cfg, proxies, logger)
	}

	backend, err := patterns.OpenBackend(cfg.Patterns.Backend, cfg.Patterns.Path)
	if err != nil {
		tiered.Close()
		return nil, fmt.Errorf("open pattern store: %w", err)
	}
	store := patterns.NewStore(backend, logger)
	store.Load()

	normalizer := content.NewNormalizer(cfg.AI.MaxInputChars)
	analyzer := ai.NewCommentAnalyzer(ai.NewLLMClient(ai.LLMConfigFrom(cfg.AI), logger), logger)

	registry := strategy.NewRegistry(logger,
		strategy.NewSelectorExtractor(),
		strategy.NewXPathExtractor(),
		strategy.NewContentAnalysisExtractor(normalizer, analyzer),
	)
	pipe := pipeline.Default(logger)
	runner := strategy.NewRunner(store, registry, pipe, logger)

	metrics := observability.NewMetrics(logger)
	metrics.TrackRateDelay(rate.CurrentDelay)

	c := engine.Components{
		Fetcher:    tiered,
		Sessions:   sessions,
		Runner:     runner,
		Patterns:   store,
		Analyzer:   analyzer,
		Normalizer: normalizer,
		Pipeline:   pipe,
		Metrics:    metrics,
	}
	if cfg.Patterns.LearnSelectors {
		c.Learner = strategy.NewSelectorLearner(logger)
	}
	if cfg.Engine.CheckpointDir != "" {
		c.Checkpoints = engine.NewCheckpointManager(cfg.Engine.CheckpointDir)
	}

	eng, err := engine.New(cfg, c, logger)
	if err != nil {
		store.Close()
		tiered.Close()
		return nil, err
	}

	return &Scraper{
		cfg:         cfg,
		engine:      eng,
		store:       store,
		fetch:       tiered,
		checkpoints: c.Checkpoints,
		logger:      logger,
	}, nil
}

// ScrapeComments extracts up to maxComments comments from one post.
func (s *Scraper) ScrapeComments(ctx context.Context, url string, maxComments int) ([]Comment, error) {
	return s.engine.ScrapeComments(ctx, url, maxComments)
}

// ScrapeMultiple scrapes posts in order. A matching checkpoint left by an
// interrupted run with the same URLs and limit is resumed.
func (s *Scraper) ScrapeMultiple(ctx context.Context, urls []string, maxComments int) ([]PageResult, error) {
	return s.engine.ScrapeMultiple(ctx, urls, maxComments)
}

// Patterns returns the learned pattern store.
func (s *Scraper) Patterns() *patterns.Store {
	return s.store
}

// Metrics returns the engine's counters.
func (s *Scraper) Metrics() *observability.Metrics {
	return s.engine.Metrics()
}

// Config returns the configuration the Scraper was built from.
func (s *Scraper) Config() *config.Config {
	return s.cfg
}

// ClearCheckpoint removes any saved batch checkpoint so the next batch
// starts fresh.
func (s *Scraper) ClearCheckpoint() error {
	if s.checkpoints == nil {
		return nil
	}
	return s.checkpoints.Clean()
}

// Close closes the pattern backend and releases idle HTTP connections.
// Patterns are already persisted as they change.
func (s *Scraper) Close() error {
	err := s.store.Close()
	if cerr := s.fetch.Close(); err == nil {
		err = cerr
	}
	return err
}
