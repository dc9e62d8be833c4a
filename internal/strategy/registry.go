// Package strategy runs stored extraction patterns against fetched pages.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Extractor applies one kind of extraction pattern to page content.
type Extractor interface {
	// Method returns the extraction method tag this extractor handles.
	Method() string

	// Extract returns the comments that data locates in content.
	Extract(ctx context.Context, content string, data patterns.ExtractionData) ([]types.Comment, error)
}

// Registry maps extraction method tags to extractors.
type Registry struct {
	extractors map[string]Extractor
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewRegistry creates a registry holding exts.
func NewRegistry(logger *slog.Logger, exts ...Extractor) *Registry {
	r := &Registry{
		extractors: make(map[string]Extractor),
		logger:     logger.With("component", "strategy_registry"),
	}
	for _, e := range exts {
		if err := r.Register(e); err != nil {
			r.logger.Warn("extractor not registered", "error", err)
		}
	}
	return r
}

// Register adds an extractor. A method may only be registered once.
func (r *Registry) Register(e Extractor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	method := patterns.NormalizeMethod(e.Method())
	if _, exists := r.extractors[method]; exists {
		return fmt.Errorf("extractor for %q already registered", method)
	}
	r.extractors[method] = e

	r.logger.Debug("extractor registered", "method", method)
	return nil
}

// Lookup returns the extractor for method. Legacy tags are normalized first.
func (r *Registry) Lookup(method string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[patterns.NormalizeMethod(method)]
	return e, ok
}

// Methods lists the registered method tags in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.extractors))
	for m := range r.extractors {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
