package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	c := &types.Comment{Text: "  Hello \n  World  ", Timestamp: " 2h "}
	result, err := p.Process(c)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.Text != "Hello World" {
		t.Errorf("expected collapsed text, got %q", result.Text)
	}
	if result.Timestamp != "2h" {
		t.Errorf("expected trimmed timestamp, got %q", result.Timestamp)
	}
}

func TestRequiredTextMiddleware(t *testing.T) {
	m := &RequiredTextMiddleware{}

	result, err := m.Process(&types.Comment{Text: "Hello"})
	if err != nil || result == nil {
		t.Error("comment with text should pass")
	}

	result, _ = m.Process(&types.Comment{Text: "   ", Timestamp: "1h"})
	if result != nil {
		t.Error("blank comment should be dropped (nil)")
	}
}

func TestHTMLSanitizeMiddleware(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	c := &types.Comment{Text: `<p>Hello <b>World</b></p><div>Tom &amp; Jerry</div> <a href="x">link</a>`}

	result, err := m.Process(c)
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello World Tom & Jerry link"
	if result.Text != want {
		t.Errorf("expected %q, got %q", want, result.Text)
	}
}

func TestHTMLSanitizeKeepsPlainText(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	c := &types.Comment{Text: "I'd say 5 > 3 & that's \"fine\""}

	result, _ := m.Process(c)
	if result.Text != c.Text {
		t.Errorf("plain text altered: %q", result.Text)
	}
}

func TestChromeStripMiddleware(t *testing.T) {
	m := NewChromeStripMiddleware()
	tests := []struct {
		in, want string
	}{
		{"Great post Like Reply Share", "Great post"},
		{"Great post See Translation", "Great post"},
		{"Like", ""},
		{"I Like turtles", "I Like turtles"},
		{"No chrome here", "No chrome here"},
	}
	for _, tt := range tests {
		result, _ := m.Process(&types.Comment{Text: tt.in})
		if result.Text != tt.want {
			t.Errorf("strip(%q) = %q, want %q", tt.in, result.Text, tt.want)
		}
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware()

	r1, _ := m.Process(&types.Comment{Text: "First!"})
	if r1 == nil {
		t.Error("first comment should pass")
	}
	r2, _ := m.Process(&types.Comment{Text: "first!"})
	if r2 != nil {
		t.Error("case-insensitive duplicate should be dropped")
	}
}

func TestDateNormalizeMiddleware(t *testing.T) {
	m := NewDateNormalizeMiddleware("")

	r, _ := m.Process(&types.Comment{Text: "x", Timestamp: "January 15, 2024"})
	if r.Timestamp != "2024-01-15T00:00:00Z" {
		t.Errorf("absolute date not normalized: %q", r.Timestamp)
	}

	r, _ = m.Process(&types.Comment{Text: "x", Timestamp: "3h"})
	if r.Timestamp != "3h" {
		t.Errorf("relative stamp should be untouched, got %q", r.Timestamp)
	}
}

func TestMaxLengthMiddleware(t *testing.T) {
	m := &MaxLengthMiddleware{MaxRunes: 3}
	r, _ := m.Process(&types.Comment{Text: "héllo"})
	if r.Text != "hél" {
		t.Errorf("expected rune-safe truncation, got %q", r.Text)
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "boom" }
func (failingMiddleware) Process(*types.Comment) (*types.Comment, error) {
	return nil, errors.New("boom")
}

func TestPipelineErrorWrapsStage(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})

	_, err := p.Process(&types.Comment{Text: "x"})
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "boom" {
		t.Fatalf("expected PipelineError at stage boom, got %v", err)
	}
}

func TestDefaultApply(t *testing.T) {
	p := Default(testLogger)
	in := []types.Comment{
		{Text: "  <span>Nice   work</span> Like Reply", Timestamp: "2h"},
		{Text: "   "},
		{Text: "Second comment"},
	}

	out := p.Apply(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 comments, got %d: %+v", len(out), out)
	}
	if out[0].Text != "Nice work" || out[0].Timestamp != "2h" {
		t.Errorf("unexpected first comment: %+v", out[0])
	}
	if out[1].Text != "Second comment" {
		t.Errorf("order not preserved: %+v", out)
	}
	if in[0].Text == out[0].Text {
		t.Error("Apply must not modify the input slice")
	}
}

func TestPipelineLen(t *testing.T) {
	if n := Default(testLogger).Len(); n != 5 {
		t.Errorf("default chain length = %d, want 5", n)
	}
}
