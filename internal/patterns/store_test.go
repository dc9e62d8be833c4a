package patterns

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// memBackend records saves in memory.
type memBackend struct {
	saved   []Pattern
	saves   int
	loadErr error
	saveErr error
}

func (b *memBackend) Load() ([]Pattern, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return append([]Pattern(nil), b.saved...), nil
}

func (b *memBackend) Save(p []Pattern) error {
	b.saves++
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saved = append([]Pattern(nil), p...)
	return nil
}

func (b *memBackend) Close() error { return nil }
func (b *memBackend) Name() string { return "memory" }

func newMemStore() (*Store, *memBackend) {
	b := &memBackend{}
	s := NewStore(b, testLogger)
	s.Load()
	return s, b
}

func contentData() ExtractionData {
	return ExtractionData{ExtractionMethod: MethodContentAnalysis, Timestamp: "2024-01-01T00:00:00Z"}
}

func TestAddPatternDefaults(t *testing.T) {
	s, b := newMemStore()

	id := s.AddPattern("https://fb.com/post/1", contentData())
	if id != "pattern_1" {
		t.Errorf("first id = %q, want pattern_1", id)
	}

	p, ok := s.Get(id)
	if !ok {
		t.Fatal("added pattern not found")
	}
	if p.SuccessCount != 1 || p.FailureCount != 0 || p.SuccessRate != 1.0 {
		t.Errorf("unexpected counters: %+v", p)
	}
	if p.CreatedAt == 0 || p.LastUsed != p.CreatedAt {
		t.Errorf("timestamps not initialized: created=%v last=%v", p.CreatedAt, p.LastUsed)
	}
	if b.saves != 1 || len(b.saved) != 1 {
		t.Errorf("add must be written through, saves=%d saved=%d", b.saves, len(b.saved))
	}
}

func TestAddPatternDuplicatesGetDistinctIDs(t *testing.T) {
	s, _ := newMemStore()

	a := s.AddPattern("https://fb.com/post/1", contentData())
	b := s.AddPattern("https://fb.com/post/1", contentData())
	if a == b {
		t.Fatalf("duplicate inputs share id %q", a)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 patterns, got %d", s.Len())
	}
}

func TestIDsStayUniqueAfterGaps(t *testing.T) {
	b := &memBackend{saved: []Pattern{
		{ID: "pattern_1", URLPattern: "a"},
		{ID: "pattern_7", URLPattern: "b"},
		{ID: "custom", URLPattern: "c"},
	}}
	s := NewStore(b, testLogger)
	s.Load()

	id := s.AddPattern("d", contentData())
	if id != "pattern_8" {
		t.Errorf("expected pattern_8 after max suffix 7, got %q", id)
	}
}

func TestSuccessRateConsistency(t *testing.T) {
	s, _ := newMemStore()
	id := s.AddPattern("post", contentData())

	outcomes := []bool{false, false, true, false, true, true, false}
	for _, ok := range outcomes {
		if ok {
			s.RecordSuccess(id)
		} else {
			s.RecordFailure(id)
		}
		p, _ := s.Get(id)
		want := float64(p.SuccessCount) / float64(p.SuccessCount+p.FailureCount)
		if math.Abs(p.SuccessRate-want) > 1e-12 {
			t.Fatalf("rate %v inconsistent with %d/%d", p.SuccessRate, p.SuccessCount, p.FailureCount)
		}
		if p.SuccessRate < 0 || p.SuccessRate > 1 {
			t.Fatalf("rate %v out of range", p.SuccessRate)
		}
	}

	p, _ := s.Get(id)
	if p.SuccessCount != 4 || p.FailureCount != 4 {
		t.Errorf("counters = %d/%d, want 4/4", p.SuccessCount, p.FailureCount)
	}
}

func TestRecordUpdatesLastUsed(t *testing.T) {
	s, _ := newMemStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	id := s.AddPattern("post", contentData())

	s.now = func() time.Time { return base.Add(time.Hour) }
	s.RecordFailure(id)

	p, _ := s.Get(id)
	if !p.LastUsedTime().Equal(base.Add(time.Hour)) {
		t.Errorf("last used = %s, want %s", p.LastUsedTime(), base.Add(time.Hour))
	}
	if !p.CreatedTime().Equal(base) {
		t.Errorf("created = %s, want %s", p.CreatedTime(), base)
	}
}

func TestRecordUnknownIDIsNoop(t *testing.T) {
	s, b := newMemStore()
	s.AddPattern("post", contentData())
	before := b.saves

	s.RecordSuccess("pattern_99")
	s.RecordFailure("nope")

	if b.saves != before {
		t.Errorf("unknown id triggered %d saves", b.saves-before)
	}
	p, _ := s.Get("pattern_1")
	if p.SuccessCount != 1 || p.FailureCount != 0 {
		t.Errorf("existing pattern mutated: %+v", p)
	}
}

func TestMatchingPatternsOrdering(t *testing.T) {
	s, _ := newMemStore()
	a := s.AddPattern("fb.com/post", contentData())
	b := s.AddPattern("fb.com/post", contentData())
	c := s.AddPattern("fb.com/post", contentData())

	// a: 1/2, b: 1/1, c: 1/2
	s.RecordFailure(a)
	s.RecordFailure(c)

	got := s.MatchingPatterns("https://fb.com/post/1")
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	want := []string{b, a, c}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("match order mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i < len(got); i++ {
		if got[i-1].SuccessRate < got[i].SuccessRate {
			t.Errorf("not sorted by rate at %d", i)
		}
	}
}

func TestMatchingPatternsSubstringBothWays(t *testing.T) {
	s, _ := newMemStore()
	id := s.AddPattern("https://fb.com/post/123", contentData())
	s.AddPattern("https://other.example/x", contentData())

	got := s.MatchingPatterns("https://fb.com/post/123?comment_id=9")
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("url containing pattern should match, got %+v", got)
	}

	got = s.MatchingPatterns("fb.com/post")
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("url contained in pattern should match, got %+v", got)
	}

	if got := s.MatchingPatterns("https://unrelated.example/"); len(got) != 0 {
		t.Errorf("expected no match, got %d", len(got))
	}
}

func TestMatchingPatternsReturnsCopies(t *testing.T) {
	s, _ := newMemStore()
	id := s.AddPattern("post", contentData())

	got := s.MatchingPatterns("post")
	got[0].SuccessCount = 100

	p, _ := s.Get(id)
	if p.SuccessCount != 1 {
		t.Error("caller mutation leaked into the store")
	}
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	b := &memBackend{loadErr: errors.New("corrupt")}
	s := NewStore(b, testLogger)
	s.Load()

	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
	if id := s.AddPattern("post", contentData()); id != "pattern_1" {
		t.Errorf("first id after failed load = %q", id)
	}
}

func TestLoadRecomputesStoredRates(t *testing.T) {
	b := &memBackend{saved: []Pattern{
		{ID: "pattern_1", URLPattern: "fb.com/post", ExtractionData: contentData(), SuccessCount: 1, FailureCount: 3, SuccessRate: 0.9},
		{ID: "pattern_2", URLPattern: "fb.com/post", ExtractionData: contentData(), SuccessCount: 2, FailureCount: 0, SuccessRate: 0.1},
		{ID: "pattern_3", URLPattern: "fb.com/post", ExtractionData: contentData(), SuccessRate: 1},
	}}
	s := NewStore(b, testLogger)
	s.Load()

	want := map[string]float64{"pattern_1": 0.25, "pattern_2": 1, "pattern_3": 0}
	for id, rate := range want {
		p, ok := s.Get(id)
		if !ok {
			t.Fatalf("%s not loaded", id)
		}
		if p.SuccessRate != rate {
			t.Errorf("%s rate = %v, want %v", id, p.SuccessRate, rate)
		}
	}

	var ids []string
	for _, p := range s.MatchingPatterns("https://fb.com/post/1") {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"pattern_2", "pattern_1", "pattern_3"}, ids); diff != "" {
		t.Errorf("match order mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	b := &memBackend{saveErr: errors.New("disk full")}
	s := NewStore(b, testLogger)
	s.Load()

	id := s.AddPattern("post", contentData())
	s.RecordSuccess(id)
	if p, ok := s.Get(id); !ok || p.SuccessCount != 2 {
		t.Fatalf("in-memory state lost after failed save: %+v", p)
	}

	b.saveErr = nil
	s.RecordFailure(id)
	if len(b.saved) != 1 || b.saved[0].SuccessCount != 2 || b.saved[0].FailureCount != 1 {
		t.Errorf("next successful write should reconcile, saved=%+v", b.saved)
	}
}

func TestRoundTripBackends(t *testing.T) {
	dir := t.TempDir()

	sqliteBackend, err := NewSQLiteBackend(filepath.Join(dir, "patterns.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqliteBackend.Close()

	backends := []struct {
		name    string
		backend Backend
		reopen  func() Backend
	}{
		{"json", NewFileBackend(filepath.Join(dir, "patterns.json")), func() Backend {
			return NewFileBackend(filepath.Join(dir, "patterns.json"))
		}},
		{"yaml", NewFileBackend(filepath.Join(dir, "patterns.yaml")), func() Backend {
			return NewFileBackend(filepath.Join(dir, "patterns.yaml"))
		}},
		{"sqlite", sqliteBackend, func() Backend { return sqliteBackend }},
	}

	for _, tt := range backends {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.backend, testLogger)
			s.Load()

			a := s.AddPattern("https://fb.com/post/1", ExtractionData{
				ExtractionMethod: MethodContentAnalysis,
				Timestamp:        "2024-01-01T00:00:00Z",
				SampleResult:     []types.Comment{{Text: "first!", Timestamp: "1h"}, {Text: "second"}},
			})
			b := s.AddPattern("fb.com/post", ExtractionData{
				ExtractionMethod:  MethodSelector,
				Selectors:         []string{`div[role="article"]`},
				TimestampSelector: "abbr",
			})
			c := s.AddPattern("fb.com", ExtractionData{ExtractionMethod: MethodXPath, XPath: "//div[@class='c']"})
			s.RecordFailure(a)
			s.RecordFailure(a)
			s.RecordSuccess(b)
			s.RecordFailure(c)

			reloaded := NewStore(tt.reopen(), testLogger)
			reloaded.Load()

			if diff := cmp.Diff(s.All(), reloaded.All()); diff != "" {
				t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
			}
			if id := reloaded.AddPattern("x", contentData()); id != "pattern_4" {
				t.Errorf("id after reload = %q, want pattern_4", id)
			}
		})
	}
}

func TestFileBackendReadsLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facebook_patterns.json")
	legacy := `{
  "pattern_2": {
    "url_pattern": "https://www.facebook.com/story.php?id=1",
    "extraction_data": {
      "extraction_method": "gemini",
      "timestamp": "2024-03-01T10:00:00.123456",
      "sample_result": [{"comment_text": "Nice", "timestamp": "2h"}]
    },
    "created_at": 1709287200.5,
    "last_used": 1709287300.25,
    "success_count": 3,
    "failure_count": 1,
    "success_rate": 0.75
  },
  "pattern_1": {
    "url_pattern": "https://www.facebook.com/",
    "extraction_data": {"extraction_method": "gemini"},
    "created_at": 1709287000,
    "last_used": 1709287000,
    "success_count": 1,
    "failure_count": 0,
    "success_rate": 1.0
  }
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(NewFileBackend(path), testLogger)
	s.Load()

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(all))
	}
	if all[0].ID != "pattern_2" || all[1].ID != "pattern_1" {
		t.Errorf("file order not preserved: %s, %s", all[0].ID, all[1].ID)
	}
	if all[0].Method() != MethodContentAnalysis {
		t.Errorf("legacy method not normalized: %q", all[0].Method())
	}
	if all[0].ExtractionData.SampleResult[0].Text != "Nice" {
		t.Errorf("sample result lost: %+v", all[0].ExtractionData.SampleResult)
	}
	if all[0].SuccessRate != 0.75 {
		t.Errorf("rate = %v, want 0.75", all[0].SuccessRate)
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewFileBackend(path)
	if _, err := b.Load(); err == nil {
		t.Fatal("expected parse error")
	} else {
		var se *types.StorageError
		if !errors.As(err, &se) {
			t.Errorf("expected StorageError, got %T", err)
		}
	}

	s := NewStore(b, testLogger)
	s.Load()
	if s.Len() != 0 {
		t.Errorf("corrupt file should load empty, got %d", s.Len())
	}
}

func TestFileBackendMissingFile(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "nested", "patterns.json"))
	patterns, err := b.Load()
	if err != nil || len(patterns) != 0 {
		t.Fatalf("missing file: patterns=%v err=%v", patterns, err)
	}
	if err := b.Save([]Pattern{{ID: "pattern_1", URLPattern: "x"}}); err != nil {
		t.Fatalf("save should create parent dirs: %v", err)
	}
}

func TestEncodeJSONIndentedAndOrdered(t *testing.T) {
	data, err := encodeJSON([]Pattern{
		{ID: "pattern_2", URLPattern: "b"},
		{ID: "pattern_1", URLPattern: "a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeJSON(data)
	if err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	if got[0].ID != "pattern_2" || got[1].ID != "pattern_1" {
		t.Errorf("order changed: %v", got)
	}
	want := "{\n  \"pattern_2\": {\n    \"url_pattern\": \"b\","
	if string(data[:len(want)]) != want {
		t.Errorf("unexpected layout:\n%s", data)
	}
}
