package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const commentPrompt = `You are extracting user comments from a social media post page.

The page content follows. It may include a section headed "Potential Comments Found:" listing text blocks that look like comments.

Return ONLY a JSON array. Each element must be an object with:
- "comment_text": the full text of one user comment, without author names, reaction counts or buttons such as "Like" and "Reply"
- "timestamp": the time shown for the comment, or an empty string if none is visible

Do not include the post body itself. If there are no comments, return [].

Page content:
%s`

// CommentAnalyzer extracts comments from normalized page content with an LLM.
type CommentAnalyzer struct {
	llm    Generator
	logger *slog.Logger
}

// NewCommentAnalyzer creates an analyzer backed by llm.
func NewCommentAnalyzer(llm Generator, logger *slog.Logger) *CommentAnalyzer {
	return &CommentAnalyzer{
		llm:    llm,
		logger: logger.With("component", "comment_analyzer"),
	}
}

// Analyze asks the model for the comments contained in content. A model
// answer without comments yields an empty slice and no error.
func (a *CommentAnalyzer) Analyze(ctx context.Context, content string) ([]types.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	response, err := a.llm.Generate(ctx, fmt.Sprintf(commentPrompt, content))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &types.AnalysisError{Stage: "request", Err: err}
	}

	comments, err := ParseComments(response)
	if err != nil {
		a.logger.Warn("unparseable analyzer response", "error", err, "response_chars", len(response))
		return nil, &types.AnalysisError{Stage: "parse", Err: err}
	}

	a.logger.Debug("analysis complete", "comments", len(comments))
	return comments, nil
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

var errNoArray = errors.New("no JSON array in response")

type rawComment struct {
	CommentText string `json:"comment_text"`
	Timestamp   any    `json:"timestamp"`
}

// ParseComments pulls the JSON array of comments out of a model response.
// The model may wrap the array in prose or code fences.
func ParseComments(response string) ([]types.Comment, error) {
	candidate := jsonArrayRe.FindString(response)
	if candidate == "" {
		start := strings.Index(response, "[")
		end := strings.LastIndex(response, "]")
		if start < 0 || end <= start {
			return nil, errNoArray
		}
		candidate = response[start : end+1]
	}

	var raw []rawComment
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, fmt.Errorf("decode comment array: %w", err)
	}

	comments := make([]types.Comment, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.CommentText)
		if text == "" {
			continue
		}
		comments = append(comments, types.Comment{Text: text, Timestamp: stringify(r.Timestamp)})
	}
	return comments, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
