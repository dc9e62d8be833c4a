package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

const checkpointFile = "checkpoint.json"

// CheckpointManager saves and loads batch progress so an interrupted
// batch can resume after its last completed page.
type CheckpointManager struct {
	checkpointDir string
}

// BatchCheckpoint is the serializable batch state.
type BatchCheckpoint struct {
	RunID       string             `json:"run_id"`
	Timestamp   time.Time          `json:"timestamp"`
	MaxComments int                `json:"max_comments"`
	URLs        []string           `json:"urls"`
	Results     []types.PageResult `json:"results"`
}

// Matches reports whether the checkpoint belongs to a batch over the same
// URL list and comment maximum.
func (cp *BatchCheckpoint) Matches(urls []string, maxComments int) bool {
	return cp != nil &&
		cp.MaxComments == maxComments &&
		slices.Equal(cp.URLs, urls) &&
		len(cp.Results) <= len(urls)
}

// NewCheckpointManager creates a CheckpointManager writing into dir.
func NewCheckpointManager(dir string) *CheckpointManager {
	if dir == "" {
		dir = ".commentgoat_checkpoints"
	}
	return &CheckpointManager{checkpointDir: dir}
}

// Path returns the checkpoint file location.
func (cm *CheckpointManager) Path() string {
	return filepath.Join(cm.checkpointDir, checkpointFile)
}

// Save writes the batch state to disk.
func (cm *CheckpointManager) Save(cp *BatchCheckpoint) error {
	if err := os.MkdirAll(cm.checkpointDir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	// Write to temp file, then rename (atomic write)
	tmpPath := filepath.Join(cm.checkpointDir, "checkpoint.tmp")

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, cm.Path()); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// Load reads the saved batch state. A missing checkpoint yields nil, nil.
func (cm *CheckpointManager) Load() (*BatchCheckpoint, error) {
	f, err := os.Open(cm.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var cp BatchCheckpoint
	if err := json.NewDecoder(f).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// HasCheckpoint returns true if a checkpoint file exists.
func (cm *CheckpointManager) HasCheckpoint() bool {
	_, err := os.Stat(cm.Path())
	return err == nil
}

// Clean removes the checkpoint file.
func (cm *CheckpointManager) Clean() error {
	if err := os.Remove(cm.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
