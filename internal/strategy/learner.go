package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/CommentGoat/internal/content"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// maxLearnSamples bounds how many known comments are located in the DOM.
const maxLearnSamples = 5

// SelectorLearner derives CSS selectors that locate already known comments
// in a page, so later visits can skip content analysis.
type SelectorLearner struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewSelectorLearner creates a new selector learner.
func NewSelectorLearner(logger *slog.Logger) *SelectorLearner {
	return &SelectorLearner{
		logger: logger.With("component", "selector_learner"),
		now:    time.Now,
	}
}

// SelectorCandidate represents a generated selector with a confidence score.
type SelectorCandidate struct {
	Selector    string  `json:"selector"`
	Specificity int     `json:"specificity"` // Higher = more specific
	MatchCount  int     `json:"match_count"` // How many elements this matches
	Coverage    int     `json:"coverage"`    // How many known comments it finds
	Score       float64 `json:"score"`       // Confidence score (0-1)
}

// Learn returns selector pattern data for comments found in html. It
// fails when no selector finds at least half of the sampled comments.
func (l *SelectorLearner) Learn(html string, comments []types.Comment) (patterns.ExtractionData, error) {
	samples := sampleTexts(comments, maxLearnSamples)
	if len(samples) == 0 {
		return patterns.ExtractionData{}, types.ErrNoComments
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return patterns.ExtractionData{}, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []SelectorCandidate
	for _, text := range samples {
		el := smallestContaining(doc, text)
		if el == nil {
			continue
		}
		for _, c := range generateSelectorsForElement(el) {
			if seen[c.Selector] {
				continue
			}
			seen[c.Selector] = true
			scoreCandidate(doc, &c, samples)
			candidates = append(candidates, c)
		}
	}

	minCoverage := (len(samples) + 1) / 2
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Coverage >= minCoverage {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return patterns.ExtractionData{}, fmt.Errorf("no selector covers %d of %d comments", minCoverage, len(samples))
	}
	sortCandidates(kept)
	if len(kept) > 3 {
		kept = kept[:3]
	}

	selectors := make([]string, len(kept))
	for i, c := range kept {
		selectors[i] = c.Selector
	}
	l.logger.Debug("selectors learned", "selectors", selectors, "score", kept[0].Score)

	return patterns.ExtractionData{
		ExtractionMethod: patterns.MethodSelector,
		Timestamp:        l.now().UTC().Format(time.RFC3339),
		SampleResult:     types.Sample(comments, 2),
		Selectors:        selectors,
	}, nil
}

func sampleTexts(comments []types.Comment, n int) []string {
	var out []string
	for _, c := range comments {
		if t := content.CollapseWhitespace(c.Text); t != "" {
			out = append(out, t)
		}
		if len(out) == n {
			break
		}
	}
	return out
}

// smallestContaining returns the innermost element whose text contains text.
func smallestContaining(doc *goquery.Document, text string) *goquery.Selection {
	var best *goquery.Selection
	bestLen := -1
	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		nodeText := content.CollapseWhitespace(sel.Text())
		if !strings.Contains(nodeText, text) {
			return
		}
		if bestLen < 0 || len(nodeText) < bestLen {
			best, bestLen = sel, len(nodeText)
		}
	})
	return best
}

// scoreCandidate counts how many samples the selector finds. Selectors
// that also match many unrelated elements lose score.
func scoreCandidate(doc *goquery.Document, c *SelectorCandidate, samples []string) {
	matches := doc.Find(c.Selector)
	c.MatchCount = matches.Length()
	if c.MatchCount == 0 {
		return
	}

	var texts []string
	matches.Each(func(_ int, sel *goquery.Selection) {
		texts = append(texts, content.CollapseWhitespace(sel.Text()))
	})
	for _, s := range samples {
		for _, t := range texts {
			if strings.Contains(t, s) {
				c.Coverage++
				break
			}
		}
	}

	coverage := float64(c.Coverage) / float64(len(samples))
	precision := float64(c.Coverage) / float64(c.MatchCount)
	if precision > 1 {
		precision = 1
	}
	c.Score = 0.7*coverage + 0.3*precision
}

// generateSelectorsForElement creates multiple selector strategies for an element.
func generateSelectorsForElement(sel *goquery.Selection) []SelectorCandidate {
	var candidates []SelectorCandidate
	tag := goquery.NodeName(sel)

	// Class-based selectors generalize across sibling comments.
	if class, exists := sel.Attr("class"); exists && class != "" {
		classes := strings.Fields(class)
		for _, c := range classes {
			candidates = append(candidates, SelectorCandidate{
				Selector:    tag + "." + cssEscape(c),
				Specificity: 20,
			})
		}
		if len(classes) > 1 {
			combined := tag
			for _, c := range classes {
				combined += "." + cssEscape(c)
			}
			candidates = append(candidates, SelectorCandidate{
				Selector:    combined,
				Specificity: 10 + len(classes)*10,
			})
		}
	}

	for _, attr := range []string{"data-testid", "data-type", "role", "aria-label"} {
		if val, exists := sel.Attr(attr); exists && val != "" {
			candidates = append(candidates, SelectorCandidate{
				Selector:    fmt.Sprintf(`%s[%s="%s"]`, tag, attr, strings.ReplaceAll(val, `"`, `\"`)),
				Specificity: 50,
			})
		}
	}

	if path := buildElementPath(sel, 3); path != "" {
		candidates = append(candidates, SelectorCandidate{
			Selector:    path,
			Specificity: 30,
		})
	}

	return candidates
}

// buildElementPath constructs a CSS path from ancestors. Ids are skipped
// since they pin the path to a single comment.
func buildElementPath(sel *goquery.Selection, maxDepth int) string {
	var parts []string
	current := sel

	for i := 0; i < maxDepth; i++ {
		tag := goquery.NodeName(current)
		if tag == "" || tag == "html" || tag == "body" {
			break
		}

		part := tag
		if class, exists := current.Attr("class"); exists && class != "" {
			if classes := strings.Fields(class); len(classes) > 0 {
				part += "." + cssEscape(classes[0])
			}
		}

		parts = append([]string{part}, parts...)
		current = current.Parent()
	}

	return strings.Join(parts, " > ")
}

// cssEscape escapes special characters in CSS selectors.
func cssEscape(s string) string {
	replacer := strings.NewReplacer(
		":", `\:`,
		".", `\.`,
		"[", `\[`,
		"]", `\]`,
		"(", `\(`,
		")", `\)`,
		"/", `\/`,
		" ", `\ `,
	)
	return replacer.Replace(s)
}

// sortCandidates sorts by score descending, then specificity descending.
func sortCandidates(candidates []SelectorCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Specificity > candidates[j].Specificity
	})
}
