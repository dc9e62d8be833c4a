package strategy

import (
	"context"

	"github.com/IshaanNene/CommentGoat/internal/content"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Analyzer is the content-understanding collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, content string) ([]types.Comment, error)
}

// ContentAnalysisExtractor re-runs content analysis for pages whose stored
// pattern was learned that way.
type ContentAnalysisExtractor struct {
	normalizer *content.Normalizer
	analyzer   Analyzer
}

// NewContentAnalysisExtractor creates an extractor that normalizes pages
// with normalizer before handing them to analyzer.
func NewContentAnalysisExtractor(normalizer *content.Normalizer, analyzer Analyzer) *ContentAnalysisExtractor {
	return &ContentAnalysisExtractor{normalizer: normalizer, analyzer: analyzer}
}

// Method implements Extractor.
func (e *ContentAnalysisExtractor) Method() string { return patterns.MethodContentAnalysis }

// Extract implements Extractor. The pattern data carries nothing the
// analyzer needs.
func (e *ContentAnalysisExtractor) Extract(ctx context.Context, html string, _ patterns.ExtractionData) ([]types.Comment, error) {
	return e.analyzer.Analyze(ctx, e.normalizer.Normalize(html))
}
