package pipeline

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// --- Advanced Middleware ---

// HTMLSanitizeMiddleware strips markup from comment text and decodes entities.
type HTMLSanitizeMiddleware struct {
	policy *bluemonday.Policy
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		policy: bluemonday.StrictPolicy(),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	c.Text = m.clean(c.Text)
	c.Timestamp = m.clean(c.Timestamp)
	return c, nil
}

func (m *HTMLSanitizeMiddleware) clean(s string) string {
	if s == "" {
		return s
	}
	// Tags become spaces so adjacent blocks don't fuse into one word.
	cleaned := m.policy.Sanitize(strings.ReplaceAll(s, "<", " <"))
	cleaned = html.UnescapeString(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// defaultChromeWords are UI labels that scrapers pick up next to comment text.
var defaultChromeWords = []string{"See Translation", "Like", "Reply", "Share", "Edited"}

// ChromeStripMiddleware removes trailing UI labels such as "Like" or
// "Reply" that were captured along with the comment.
type ChromeStripMiddleware struct {
	words []string
}

func NewChromeStripMiddleware(words ...string) *ChromeStripMiddleware {
	if len(words) == 0 {
		words = defaultChromeWords
	}
	return &ChromeStripMiddleware{words: words}
}

func (m *ChromeStripMiddleware) Name() string { return "chrome_strip" }

func (m *ChromeStripMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	text := strings.TrimSpace(c.Text)
	for {
		stripped := false
		for _, w := range m.words {
			if text == w {
				text = ""
				stripped = true
				break
			}
			if strings.HasSuffix(text, " "+w) {
				text = strings.TrimSpace(strings.TrimSuffix(text, w))
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	c.Text = text
	return c, nil
}

// DateNormalizeMiddleware rewrites absolute timestamps to a standard format.
// Relative stamps such as "2h" or "Yesterday" are left untouched.
type DateNormalizeMiddleware struct {
	outFormat string
	inFormats []string
}

func NewDateNormalizeMiddleware(outFormat string) *DateNormalizeMiddleware {
	if outFormat == "" {
		outFormat = time.RFC3339
	}
	return &DateNormalizeMiddleware{
		outFormat: outFormat,
		inFormats: []string{
			time.RFC3339,
			time.RFC1123,
			time.RFC1123Z,
			time.RFC822,
			time.RFC822Z,
			"2006-01-02",
			"2006-01-02T15:04:05",
			"2006-01-02T15:04:05.999999",
			"2006-01-02 15:04:05",
			"January 2, 2006",
			"January 2, 2006 at 3:04 PM",
			"Jan 2, 2006",
			"2 January 2006",
			"2 Jan 2006",
			"Monday, January 2, 2006 at 3:04 PM",
			"2006/01/02",
		},
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(c *types.Comment) (*types.Comment, error) {
	s := strings.TrimSpace(c.Timestamp)
	if s == "" {
		return c, nil
	}
	for _, format := range m.inFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			c.Timestamp = t.Format(m.outFormat)
			break
		}
	}
	return c, nil
}
