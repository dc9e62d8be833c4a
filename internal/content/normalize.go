// Package content turns raw post HTML into compact text suitable for the
// content analyzer.
package content

import (
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
)

// CandidateSelectors match elements that commonly hold a single comment
// on social post pages.
var CandidateSelectors = []string{
	`div[role="article"]`,
	`div.comment`,
	`div._4eek`,
	`div.UFICommentContent`,
	`div[data-testid="UFI2Comment"]`,
	`div.UFIComment`,
	`div[data-testid="comment"]`,
}

// candidatesHeader separates the page text from the candidate section.
const candidatesHeader = "Potential Comments Found:"

// noiseSelector lists elements that never carry comment text.
const noiseSelector = "script, style, noscript, svg, iframe, template, link, meta"

// Normalizer converts HTML into analyzer input.
type Normalizer struct {
	md       *converter.Converter
	maxChars int
}

// NewNormalizer creates a Normalizer that truncates its output to maxChars
// runes. maxChars <= 0 disables truncation.
func NewNormalizer(maxChars int) *Normalizer {
	return &Normalizer{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		maxChars: maxChars,
	}
}

// Normalize strips scripts and styling, renders the rest as Markdown and
// appends the texts of likely comment containers. Input that does not
// parse as HTML is returned truncated but otherwise unchanged.
func (n *Normalizer) Normalize(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Truncate(html, n.maxChars)
	}

	doc.Find(noiseSelector).Remove()

	var b strings.Builder
	b.WriteString(n.pageText(doc))

	if candidates := CandidateTexts(doc); len(candidates) > 0 {
		b.WriteString("\n\n")
		b.WriteString(candidatesHeader)
		b.WriteString("\n")
		for _, c := range candidates {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}

	return Truncate(strings.TrimSpace(b.String()), n.maxChars)
}

// pageText renders the body as Markdown, falling back to collapsed plain
// text when conversion fails or yields nothing.
func (n *Normalizer) pageText(doc *goquery.Document) string {
	fallback := CollapseWhitespace(doc.Text())

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	inner, err := body.Html()
	if err != nil || strings.TrimSpace(inner) == "" {
		return fallback
	}

	md, err := n.md.ConvertString(inner)
	if err != nil || strings.TrimSpace(md) == "" {
		return fallback
	}
	return strings.TrimSpace(md)
}

// CandidateTexts returns the collapsed text of each element matched by
// CandidateSelectors, in document order per selector, skipping repeats.
func CandidateTexts(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var texts []string
	for _, sel := range CandidateSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := CollapseWhitespace(s.Text())
			if text == "" || seen[text] {
				return
			}
			seen[text] = true
			texts = append(texts, text)
		})
	}
	return texts
}

// CollapseWhitespace trims s and joins its fields with single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most max runes without splitting a rune.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
