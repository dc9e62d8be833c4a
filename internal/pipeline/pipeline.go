package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Middleware processes a comment and returns the (possibly modified) comment.
// Return nil to drop the comment from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a comment. Return nil to drop it.
	Process(c *types.Comment) (*types.Comment, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the cleaning chain applied to every extracted comment.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(NewChromeStripMiddleware())
	p.Use(&TrimMiddleware{})
	p.Use(&RequiredTextMiddleware{})
	p.Use(NewDateNormalizeMiddleware(""))
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the comment through all middleware in order.
func (p *Pipeline) Process(c *types.Comment) (*types.Comment, error) {
	current := c

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:   mw.Name(),
				Comment: current,
				Err:     err,
			}
		}
		if result == nil {
			p.logger.Debug("comment dropped", "stage", mw.Name())
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Apply processes a batch, returning the surviving comments in order.
// Comments that fail a stage are logged and dropped.
func (p *Pipeline) Apply(comments []types.Comment) []types.Comment {
	out := make([]types.Comment, 0, len(comments))
	for i := range comments {
		c := comments[i]
		result, err := p.Process(&c)
		if err != nil {
			p.logger.Warn("comment rejected", "error", err)
			continue
		}
		if result != nil {
			out = append(out, *result)
		}
	}
	return out
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// RequiredTextMiddleware drops comments whose text is empty.
type RequiredTextMiddleware struct{}

func (m *RequiredTextMiddleware) Name() string { return "required_text" }

func (m *RequiredTextMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	if strings.TrimSpace(c.Text) == "" {
		return nil, nil
	}
	return c, nil
}

// DedupMiddleware drops comments whose text was already seen.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	key := strings.ToLower(c.Text)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return c, nil
}

// TrimMiddleware collapses runs of whitespace in text and timestamp.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	c.Text = strings.Join(strings.Fields(c.Text), " ")
	c.Timestamp = strings.TrimSpace(c.Timestamp)
	return c, nil
}

// MaxLengthMiddleware truncates overly long comments.
type MaxLengthMiddleware struct {
	MaxRunes int
}

func (m *MaxLengthMiddleware) Name() string { return "max_length" }

func (m *MaxLengthMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	if m.MaxRunes <= 0 {
		return c, nil
	}
	runes := []rune(c.Text)
	if len(runes) > m.MaxRunes {
		c.Text = string(runes[:m.MaxRunes])
	}
	return c, nil
}
