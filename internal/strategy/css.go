package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/CommentGoat/internal/content"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

var errNoSelectors = errors.New("pattern has no selectors")

// SelectorExtractor extracts comments using CSS selectors via goquery.
type SelectorExtractor struct{}

// NewSelectorExtractor creates a CSS selector extractor.
func NewSelectorExtractor() *SelectorExtractor {
	return &SelectorExtractor{}
}

// Method implements Extractor.
func (e *SelectorExtractor) Method() string { return patterns.MethodSelector }

// Extract tries each selector in order and returns the comments of the
// first one that matches anything. Each match is one comment; when a
// timestamp selector is set, its first hit inside the match becomes the
// timestamp and is removed from the comment text.
func (e *SelectorExtractor) Extract(ctx context.Context, html string, data patterns.ExtractionData) ([]types.Comment, error) {
	if len(data.Selectors) == 0 {
		return nil, errNoSelectors
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	for _, selector := range data.Selectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		comments := extractCSS(doc, selector, data.TimestampSelector)
		if len(comments) > 0 {
			return comments, nil
		}
	}
	return nil, nil
}

// extractCSS applies a single selector and returns one comment per match.
// Selectors that fail to compile match nothing.
func extractCSS(doc *goquery.Document, selector, timestampSelector string) []types.Comment {
	var comments []types.Comment
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		var ts string
		if timestampSelector != "" {
			sel = sel.Clone()
			stamp := sel.Find(timestampSelector).First()
			ts = content.CollapseWhitespace(stamp.Text())
			stamp.Remove()
		}

		text := content.CollapseWhitespace(sel.Text())
		if text == "" {
			return
		}
		comments = append(comments, types.Comment{Text: text, Timestamp: ts})
	})
	return comments
}
