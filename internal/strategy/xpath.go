package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/CommentGoat/internal/content"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

var errNoXPath = errors.New("pattern has no xpath")

// XPathExtractor extracts comments using XPath expressions.
type XPathExtractor struct{}

// NewXPathExtractor creates a new XPath extractor.
func NewXPathExtractor() *XPathExtractor {
	return &XPathExtractor{}
}

// Method implements Extractor.
func (e *XPathExtractor) Method() string { return patterns.MethodXPath }

// Extract returns one comment per node matched by data.XPath. The optional
// timestamp expression is evaluated relative to each matched node.
func (e *XPathExtractor) Extract(_ context.Context, page string, data patterns.ExtractionData) ([]types.Comment, error) {
	if data.XPath == "" {
		return nil, errNoXPath
	}

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, data.XPath)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", data.XPath, err)
	}

	var comments []types.Comment
	for _, node := range nodes {
		text := content.CollapseWhitespace(htmlquery.InnerText(node))
		if text == "" {
			continue
		}

		var ts string
		if data.TimestampXPath != "" {
			stamp, err := htmlquery.Query(node, data.TimestampXPath)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp xpath %q: %w", data.TimestampXPath, err)
			}
			if stamp != nil {
				ts = content.CollapseWhitespace(htmlquery.InnerText(stamp))
				text = content.CollapseWhitespace(strings.Replace(text, ts, "", 1))
			}
		}

		comments = append(comments, types.Comment{Text: text, Timestamp: ts})
	}
	return comments, nil
}
