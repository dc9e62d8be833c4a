package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/types"
)

// Storage is the interface for all output backends.
type Storage interface {
	// Store persists the comments of one or more pages.
	Store(results []types.PageResult) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Mode selects the output shape. Single-page output is a flat list of
// comments; batch output keeps the post URL of every comment.
type Mode int

const (
	ModeSingle Mode = iota
	ModeBatch
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatJSONL   = "jsonl"
	FormatCSV     = "csv"
	FormatMongoDB = "mongodb"
)

// DefaultFilename returns comments_<YYYYMMDD_HHMMSS>.<format>.
func DefaultFilename(format string, now time.Time) string {
	return fmt.Sprintf("comments_%s.%s", now.Format("20060102_150405"), format)
}

// OutputPath resolves where a file backend writes. An empty file name
// gets a timestamped default inside dir; a custom name gets the format
// extension appended when it is missing.
func OutputPath(dir, file, format string, now time.Time) string {
	if file == "" {
		return filepath.Join(dir, DefaultFilename(format, now))
	}
	if !strings.HasSuffix(file, "."+format) {
		file += "." + format
	}
	return file
}

// New creates the backend configured by cfg.Type.
func New(cfg config.StorageConfig, mode Mode, now time.Time, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case FormatJSON, FormatJSONL, FormatCSV:
		return NewFileStorage(cfg.Type, OutputPath(cfg.OutputDir, cfg.OutputFile, cfg.Type, now), mode, logger)
	case FormatMongoDB:
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, &types.StorageError{Backend: cfg.Type, Err: fmt.Errorf("unsupported storage type %q", cfg.Type)}
	}
}
