// Package patterns keeps the registry of learned extraction patterns and
// their empirical success rates.
package patterns

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Extraction method tags.
const (
	MethodContentAnalysis = "content-analysis"
	MethodSelector        = "selector"
	MethodXPath           = "xpath"

	// methodGeminiLegacy is how older pattern files tag content analysis.
	methodGeminiLegacy = "gemini"
)

// NormalizeMethod maps legacy method tags onto their current name.
func NormalizeMethod(method string) string {
	if method == methodGeminiLegacy {
		return MethodContentAnalysis
	}
	return method
}

// ExtractionData is the strategy-specific payload of a pattern. Which
// fields matter depends on ExtractionMethod.
type ExtractionData struct {
	ExtractionMethod string          `json:"extraction_method"           yaml:"extraction_method"`
	Timestamp        string          `json:"timestamp,omitempty"         yaml:"timestamp,omitempty"`
	SampleResult     []types.Comment `json:"sample_result,omitempty"     yaml:"sample_result,omitempty"`

	// Selector method: container selectors tried in order, plus an optional
	// timestamp selector evaluated inside each container.
	Selectors         []string `json:"selectors,omitempty"          yaml:"selectors,omitempty"`
	TimestampSelector string   `json:"timestamp_selector,omitempty" yaml:"timestamp_selector,omitempty"`

	// XPath method.
	XPath          string `json:"xpath,omitempty"           yaml:"xpath,omitempty"`
	TimestampXPath string `json:"timestamp_xpath,omitempty" yaml:"timestamp_xpath,omitempty"`
}

// Pattern is a stored extraction strategy bound to a URL substring.
type Pattern struct {
	ID             string         `json:"-"              yaml:"-"`
	URLPattern     string         `json:"url_pattern"    yaml:"url_pattern"`
	ExtractionData ExtractionData `json:"extraction_data" yaml:"extraction_data"`
	CreatedAt      float64        `json:"created_at"     yaml:"created_at"` // unix seconds
	LastUsed       float64        `json:"last_used"      yaml:"last_used"`  // unix seconds
	SuccessCount   int            `json:"success_count"  yaml:"success_count"`
	FailureCount   int            `json:"failure_count"  yaml:"failure_count"`
	SuccessRate    float64        `json:"success_rate"   yaml:"success_rate"`
}

// Method returns the normalized extraction method tag.
func (p Pattern) Method() string {
	return NormalizeMethod(p.ExtractionData.ExtractionMethod)
}

// LastUsedTime converts LastUsed to a time.Time.
func (p Pattern) LastUsedTime() time.Time {
	return fromUnixSeconds(p.LastUsed)
}

// CreatedTime converts CreatedAt to a time.Time.
func (p Pattern) CreatedTime() time.Time {
	return fromUnixSeconds(p.CreatedAt)
}

// Matches reports whether the pattern applies to url. Either string
// containing the other counts as a match.
func (p Pattern) Matches(url string) bool {
	return strings.Contains(url, p.URLPattern) || strings.Contains(p.URLPattern, url)
}

func (p *Pattern) recomputeRate() {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		p.SuccessRate = 0
		return
	}
	p.SuccessRate = float64(p.SuccessCount) / float64(total)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(s float64) time.Time {
	return time.UnixMicro(int64(s*1e6 + 0.5))
}

const idPrefix = "pattern_"

func formatID(n int) string {
	return fmt.Sprintf("%s%d", idPrefix, n)
}

// idNumber extracts n from "pattern_<n>". Non-conforming ids yield 0.
func idNumber(id string) int {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
