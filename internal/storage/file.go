package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// commentRow is a comment flattened with the post it came from.
type commentRow struct {
	Text      string `json:"comment_text"`
	Timestamp string `json:"timestamp,omitempty"`
	PostURL   string `json:"post_url,omitempty"`
}

func createOutput(outputPath string) (*os.File, error) {
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// --- JSON Storage ---

// JSONStorage buffers results and writes them on Close: a comment array
// in single mode, an object keyed by post URL in batch mode.
type JSONStorage struct {
	path    string
	mode    Mode
	results []types.PageResult
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, mode Mode, logger *slog.Logger) (*JSONStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONStorage{
		path:   outputPath,
		mode:   mode,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return FormatJSON }

// Path returns the output file.
func (s *JSONStorage) Path() string { return s.path }

func (s *JSONStorage) Store(results []types.PageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, results...)
	s.logger.Debug("results buffered", "pages", len(results), "total", len(s.results))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if s.mode == ModeBatch {
		data, err = encodeByURL(s.results)
	} else {
		comments := make([]types.Comment, 0)
		for _, r := range s.results {
			comments = append(comments, r.Comments...)
		}
		data, err = json.MarshalIndent(comments, "", "  ")
	}
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}

	f, err := createOutput(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.logger.Info("JSON written", "path", s.path, "pages", len(s.results))
	return nil
}

// encodeByURL writes results as a JSON object in first-seen URL order. A
// repeated URL keeps its first position and its latest comments.
func encodeByURL(results []types.PageResult) ([]byte, error) {
	var order []string
	byURL := make(map[string][]types.Comment, len(results))
	for _, r := range results {
		if _, seen := byURL[r.URL]; !seen {
			order = append(order, r.URL)
		}
		comments := r.Comments
		if comments == nil {
			comments = []types.Comment{}
		}
		byURL[r.URL] = comments
	}

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, url := range order {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(url)
		if err != nil {
			return nil, err
		}
		val, err := json.MarshalIndent(byURL[url], "  ", "  ")
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
	}
	if len(order) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// --- JSONL Storage ---

// JSONLStorage streams one comment per line.
type JSONLStorage struct {
	path   string
	mode   Mode
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, mode Mode, logger *slog.Logger) (*JSONLStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}
	return &JSONLStorage{
		path:   outputPath,
		mode:   mode,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return FormatJSONL }

// Path returns the output file.
func (s *JSONLStorage) Path() string { return s.path }

func (s *JSONLStorage) Store(results []types.PageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		for _, c := range r.Comments {
			row := commentRow{Text: c.Text, Timestamp: c.Timestamp}
			if s.mode == ModeBatch {
				row.PostURL = r.URL
			}
			if err := s.enc.Encode(row); err != nil {
				return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
			}
			s.count++
		}
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "comments", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// --- CSV Storage ---

// CSVStorage writes comment_text,timestamp rows, plus post_url in batch mode.
type CSVStorage struct {
	path          string
	mode          Mode
	file          *os.File
	writer        *csv.Writer
	headerWritten bool
	mu            sync.Mutex
	count         int
	logger        *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(outputPath string, mode Mode, logger *slog.Logger) (*CSVStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}
	return &CSVStorage{
		path:   outputPath,
		mode:   mode,
		file:   f,
		writer: csv.NewWriter(f),
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return FormatCSV }

// Path returns the output file.
func (s *CSVStorage) Path() string { return s.path }

func (s *CSVStorage) headers() []string {
	if s.mode == ModeBatch {
		return []string{"comment_text", "timestamp", "post_url"}
	}
	return []string{"comment_text", "timestamp"}
}

func (s *CSVStorage) writeHeader() error {
	if s.headerWritten {
		return nil
	}
	s.headerWritten = true
	if err := s.writer.Write(s.headers()); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV header: %w", err)}
	}
	return nil
}

func (s *CSVStorage) Store(results []types.PageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeHeader(); err != nil {
		return err
	}
	for _, r := range results {
		for _, c := range r.Comments {
			row := []string{c.Text, c.Timestamp}
			if s.mode == ModeBatch {
				row = append(row, r.URL)
			}
			if err := s.writer.Write(row); err != nil {
				return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV row: %w", err)}
			}
			s.count++
		}
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An empty run still gets a header row.
	if err := s.writeHeader(); err != nil {
		return err
	}
	s.writer.Flush()
	s.logger.Info("CSV written", "path", s.path, "comments", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// NewFileStorage creates the file backend for format writing to outputPath.
func NewFileStorage(format, outputPath string, mode Mode, logger *slog.Logger) (Storage, error) {
	switch format {
	case FormatJSON:
		return NewJSONStorage(outputPath, mode, logger)
	case FormatJSONL:
		return NewJSONLStorage(outputPath, mode, logger)
	case FormatCSV:
		return NewCSVStorage(outputPath, mode, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", format)
	}
}
