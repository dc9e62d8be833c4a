package patterns

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Backend persists the full ordered pattern set.
type Backend interface {
	// Load returns the stored patterns in insertion order. Absent storage
	// yields an empty slice and no error.
	Load() ([]Pattern, error)

	// Save replaces the stored set with patterns.
	Save(patterns []Pattern) error

	Close() error
	Name() string
}

// Store is the in-memory pattern registry. Every mutation is written
// through to the backend before the lock is released.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	patterns map[string]*Pattern
	order    []string
	lastID   int
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates an empty store over backend. Call Load to read
// previously persisted patterns.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend:  backend,
		patterns: make(map[string]*Pattern),
		now:      time.Now,
		logger:   logger.With("component", "pattern_store", "backend", backend.Name()),
	}
}

// Load replaces the in-memory state with the backend contents. Read or
// parse failures are logged and leave the store empty.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.patterns = make(map[string]*Pattern)
	s.order = nil
	s.lastID = 0

	loaded, err := s.backend.Load()
	if err != nil {
		s.logger.Error("failed to load patterns, starting empty", "error", err)
		return
	}

	for i := range loaded {
		p := loaded[i]
		if p.ID == "" {
			continue
		}
		if _, dup := s.patterns[p.ID]; dup {
			s.logger.Warn("duplicate pattern id in storage, keeping first", "id", p.ID)
			continue
		}
		// Stored rates may be stale or hand-edited; the counters win.
		p.recomputeRate()
		s.patterns[p.ID] = &p
		s.order = append(s.order, p.ID)
		if n := idNumber(p.ID); n > s.lastID {
			s.lastID = n
		}
	}

	s.logger.Info("patterns loaded", "count", len(s.order))
}

// AddPattern records a new pattern with one success and no failures and
// returns its id. Identical inputs produce distinct patterns.
func (s *Store) AddPattern(urlPattern string, data ExtractionData) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	id := formatID(s.lastID)
	now := unixSeconds(s.now())

	s.patterns[id] = &Pattern{
		ID:             id,
		URLPattern:     urlPattern,
		ExtractionData: data,
		CreatedAt:      now,
		LastUsed:       now,
		SuccessCount:   1,
		FailureCount:   0,
		SuccessRate:    1.0,
	}
	s.order = append(s.order, id)
	s.persist()

	s.logger.Info("pattern added", "id", id, "url_pattern", urlPattern, "method", data.ExtractionMethod)
	return id
}

// MatchingPatterns returns copies of every pattern matching url, best
// success rate first. Equal rates keep insertion order.
func (s *Store) MatchingPatterns(url string) []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Pattern
	for _, id := range s.order {
		p := s.patterns[id]
		if p.Matches(url) {
			matches = append(matches, *p)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SuccessRate > matches[j].SuccessRate
	})
	return matches
}

// RecordSuccess counts a successful use of the pattern. Unknown ids are ignored.
func (s *Store) RecordSuccess(id string) {
	s.record(id, true)
}

// RecordFailure counts a failed use of the pattern. Unknown ids are ignored.
func (s *Store) RecordFailure(id string) {
	s.record(id, false)
}

func (s *Store) record(id string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[id]
	if !ok {
		s.logger.Warn("outcome for unknown pattern ignored", "id", id, "success", success)
		return
	}

	if success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	p.recomputeRate()
	p.LastUsed = unixSeconds(s.now())
	s.persist()

	s.logger.Debug("pattern outcome recorded",
		"id", id,
		"success", success,
		"success_rate", p.SuccessRate,
	)
}

// Get returns a copy of the pattern with the given id.
func (s *Store) Get(id string) (Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[id]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

// All returns copies of every pattern in insertion order.
func (s *Store) All() []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Len returns the number of stored patterns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// persist writes the whole set. Failures are logged; memory stays
// authoritative and the next successful write catches storage up.
// Callers hold s.mu.
func (s *Store) persist() {
	if err := s.backend.Save(s.snapshot()); err != nil {
		s.logger.Error("failed to persist patterns", "error", err)
	}
}

func (s *Store) snapshot() []Pattern {
	out := make([]Pattern, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.patterns[id])
	}
	return out
}
