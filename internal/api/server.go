package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Scraper runs extraction jobs.
type Scraper interface {
	ScrapeComments(ctx context.Context, url string, maxComments int) ([]types.Comment, error)
	ScrapeMultiple(ctx context.Context, urls []string, maxComments int) ([]types.PageResult, error)
}

// PatternReader exposes the learned patterns.
type PatternReader interface {
	All() []patterns.Pattern
	MatchingPatterns(url string) []patterns.Pattern
	Get(id string) (patterns.Pattern, bool)
}

// Job states.
const (
	JobQueued   = "queued"
	JobRunning  = "running"
	JobDone     = "done"
	JobCanceled = "canceled"
	JobFailed   = "failed"
)

// Job tracks an asynchronous batch.
type Job struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	URLs        []string           `json:"urls"`
	MaxComments int                `json:"max_comments"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Error       string             `json:"error,omitempty"`
	Results     []types.PageResult `json:"results,omitempty"`

	cancel context.CancelFunc
}

type scrapeRequest struct {
	URL         string   `json:"url"`
	URLs        []string `json:"urls"`
	MaxComments int      `json:"max_comments"`
}

// Server provides a REST API for submitting extraction jobs and inspecting
// learned patterns. Jobs run one at a time in submission order.
type Server struct {
	router     chi.Router
	scraper    Scraper
	patterns   PatternReader
	defaultMax int
	logger     *slog.Logger

	jobs   map[string]*Job
	order  []string
	jobsMu sync.RWMutex
	queue  chan *Job

	// run serializes synchronous scrapes with queued jobs.
	run sync.Mutex

	newID func() string
	now   func() time.Time
}

// NewServer creates a new API server. metrics, when non-nil, is mounted at
// /metrics.
func NewServer(scraper Scraper, store PatternReader, metrics http.Handler, defaultMax int, logger *slog.Logger) *Server {
	s := &Server{
		scraper:    scraper,
		patterns:   store,
		defaultMax: defaultMax,
		logger:     logger.With("component", "api_server"),
		jobs:       make(map[string]*Job),
		queue:      make(chan *Job, 64),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	s.registerRoutes(metrics)
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API on port and processes queued jobs until ctx is done.
func (s *Server) Run(ctx context.Context, port int) error {
	go s.worker(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes(metrics http.Handler) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Post("/api/scrape", s.handleScrape)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
		r.Delete("/{id}", s.handleCancelJob)
	})

	r.Get("/api/patterns", s.handleListPatterns)
	r.Get("/api/patterns/{id}", s.handleGetPattern)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// handleScrape runs a single-post scrape and answers with its comments.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	maxComments := s.maxOrDefault(body.MaxComments)
	if err := s.validate([]string{body.URL}, maxComments); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.run.Lock()
	comments, err := s.scraper.ScrapeComments(r.Context(), body.URL, maxComments)
	s.run.Unlock()
	if err != nil {
		s.scrapeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.PageResult{URL: body.URL, Comments: comments})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	urls := body.URLs
	if len(urls) == 0 && body.URL != "" {
		urls = []string{body.URL}
	}
	maxComments := s.maxOrDefault(body.MaxComments)
	if err := s.validate(urls, maxComments); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &Job{
		ID:          s.newID(),
		Status:      JobQueued,
		URLs:        urls,
		MaxComments: maxComments,
		CreatedAt:   s.now(),
	}

	s.jobsMu.Lock()
	select {
	case s.queue <- job:
	default:
		s.jobsMu.Unlock()
		s.errorResponse(w, http.StatusServiceUnavailable, "job queue is full")
		return
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	view := *job
	s.jobsMu.Unlock()

	s.logger.Info("job queued", "job", job.ID, "urls", len(urls))
	s.jsonResponse(w, http.StatusAccepted, &view)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		j := *s.jobs[id]
		j.Results = nil
		jobs = append(jobs, j)
	}
	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(chi.URLParam(r, "id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "job not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleCancelJob cancels a queued or running job. Finished jobs are left as is.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.jobsMu.Unlock()
		s.errorResponse(w, http.StatusNotFound, "job not found")
		return
	}
	switch job.Status {
	case JobQueued:
		job.Status = JobCanceled
		now := s.now()
		job.FinishedAt = &now
	case JobRunning:
		job.cancel()
	}
	view := *job
	s.jobsMu.Unlock()

	s.jsonResponse(w, http.StatusOK, &view)
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	var ps []patterns.Pattern
	if u := r.URL.Query().Get("url"); u != "" {
		ps = s.patterns.MatchingPatterns(u)
	} else {
		ps = s.patterns.All()
	}
	out := make([]patternView, len(ps))
	for i, p := range ps {
		out[i] = patternView{ID: p.ID, Pattern: p}
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	p, ok := s.patterns.Get(chi.URLParam(r, "id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "pattern not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, patternView{ID: p.ID, Pattern: p})
}

// patternView adds the id, which the persisted pattern format keeps as the
// map key.
type patternView struct {
	ID string `json:"id"`
	patterns.Pattern
}

// worker runs queued jobs until ctx is done.
func (s *Server) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.runJob(ctx, job)
		}
	}
}

func (s *Server) runJob(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.jobsMu.Lock()
	if job.Status != JobQueued {
		s.jobsMu.Unlock()
		return
	}
	job.Status = JobRunning
	job.cancel = cancel
	started := s.now()
	job.StartedAt = &started
	s.jobsMu.Unlock()

	logger := s.logger.With("job", job.ID)
	logger.Info("job started", "urls", len(job.URLs))

	s.run.Lock()
	results, err := s.scraper.ScrapeMultiple(jobCtx, job.URLs, job.MaxComments)
	s.run.Unlock()

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	finished := s.now()
	job.FinishedAt = &finished
	job.Results = results
	switch {
	case err == nil:
		job.Status = JobDone
	case errors.Is(err, context.Canceled):
		job.Status = JobCanceled
	default:
		job.Status = JobFailed
		job.Error = err.Error()
	}
	logger.Info("job finished", "status", job.Status, "pages", len(results), "elapsed", finished.Sub(started))
}

func (s *Server) job(id string) (Job, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (s *Server) maxOrDefault(n int) int {
	if n == 0 {
		return s.defaultMax
	}
	return n
}

func (s *Server) validate(urls []string, maxComments int) error {
	if len(urls) == 0 {
		return errors.New("at least one post URL is required")
	}
	if maxComments < 1 {
		return types.ErrInvalidMax
	}
	for _, u := range urls {
		if err := config.ValidateURL(u); err != nil {
			return fmt.Errorf("%w: %s", types.ErrInvalidURL, u)
		}
	}
	return nil
}

func (s *Server) scrapeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidURL), errors.Is(err, types.ErrInvalidMax):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.errorResponse(w, http.StatusServiceUnavailable, "scrape canceled")
	default:
		s.logger.Error("scrape failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("response encode failed", "error", err)
	}
}
