package strategy

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/pipeline"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// PatternSource is the part of the pattern store the runner needs.
type PatternSource interface {
	MatchingPatterns(url string) []patterns.Pattern
	RecordSuccess(id string)
	RecordFailure(id string)
}

// Runner tries stored patterns for a URL in order of success rate.
type Runner struct {
	store    PatternSource
	registry *Registry
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// NewRunner creates a runner. Extractor output is cleaned by p before it
// is judged; a nil p leaves it untouched.
func NewRunner(store PatternSource, registry *Registry, p *pipeline.Pipeline, logger *slog.Logger) *Runner {
	return &Runner{
		store:    store,
		registry: registry,
		pipeline: p,
		logger:   logger.With("component", "strategy_runner"),
	}
}

// TryPatterns runs the patterns matching url against content, best first,
// and returns the first non-empty result. Each attempt is recorded as a
// success or failure on its pattern; patterns with an unregistered method
// are skipped without being recorded. An empty result with a nil error
// means every candidate was exhausted.
//
// If ctx ends, the in-flight attempt is not recorded and ctx.Err() is
// returned.
func (r *Runner) TryPatterns(ctx context.Context, content, url string) ([]types.Comment, error) {
	candidates := r.store.MatchingPatterns(url)
	if len(candidates) == 0 {
		r.logger.Debug("no stored patterns", "url", url)
		return nil, nil
	}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		method := p.Method()
		ext, ok := r.registry.Lookup(method)
		if !ok {
			r.logger.Debug("skipping pattern with unknown method",
				"pattern", p.ID,
				"method", method,
			)
			continue
		}

		comments, err := ext.Extract(ctx, content, p.ExtractionData)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			r.logger.Warn("pattern failed", "error", &types.ExtractError{
				Method:    method,
				PatternID: p.ID,
				Err:       err,
			})
			r.store.RecordFailure(p.ID)
			continue
		}

		if r.pipeline != nil {
			comments = r.pipeline.Apply(comments)
		}
		if len(comments) == 0 {
			r.logger.Debug("pattern found nothing", "pattern", p.ID, "method", method)
			r.store.RecordFailure(p.ID)
			continue
		}

		r.store.RecordSuccess(p.ID)
		r.logger.Info("pattern matched",
			"pattern", p.ID,
			"method", method,
			"comments", len(comments),
			"success_rate", p.SuccessRate,
		)
		return comments, nil
	}

	return nil, nil
}
