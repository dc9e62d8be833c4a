package patterns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// FileBackend stores patterns as a single document keyed by pattern id.
// JSON is used unless the path ends in .yaml or .yml.
type FileBackend struct {
	path string
	yaml bool
}

// NewFileBackend creates a file backend. The file is created on first save.
func NewFileBackend(path string) *FileBackend {
	ext := strings.ToLower(filepath.Ext(path))
	return &FileBackend{
		path: path,
		yaml: ext == ".yaml" || ext == ".yml",
	}
}

func (b *FileBackend) Name() string {
	if b.yaml {
		return "yaml"
	}
	return "json"
}

// Path returns the backing file path.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Close() error { return nil }

// Load reads the pattern document. A missing or empty file is an empty set.
func (b *FileBackend) Load() ([]Pattern, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &types.StorageError{Backend: b.Name(), Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var patterns []Pattern
	if b.yaml {
		patterns, err = decodeYAML(data)
	} else {
		patterns, err = decodeJSON(data)
	}
	if err != nil {
		return nil, &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("parse %s: %w", b.path, err)}
	}
	return patterns, nil
}

// Save writes the document to a temp file and renames it over the target.
func (b *FileBackend) Save(patterns []Pattern) error {
	var (
		data []byte
		err  error
	)
	if b.yaml {
		data, err = encodeYAML(patterns)
	} else {
		data, err = encodeJSON(patterns)
	}
	if err != nil {
		return &types.StorageError{Backend: b.Name(), Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("create pattern dir: %w", err)}
	}

	tmpPath := b.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("write pattern file: %w", err)}
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("rename pattern file: %w", err)}
	}
	return nil
}

// encodeJSON writes an object keyed by id with keys in slice order.
// encoding/json would sort map keys, so the object is assembled by hand.
func encodeJSON(patterns []Pattern) ([]byte, error) {
	if len(patterns) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, p := range patterns {
		key, err := json.Marshal(p.ID)
		if err != nil {
			return nil, err
		}
		value, err := json.MarshalIndent(p, "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode pattern %s: %w", p.ID, err)
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(patterns)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func decodeJSON(data []byte) ([]Pattern, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var patterns []Pattern
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected pattern id, got %v", tok)
		}
		var p Pattern
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode pattern %s: %w", id, err)
		}
		p.ID = id
		patterns = append(patterns, p)
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return patterns, nil
}

// encodeYAML builds a mapping node so key order follows the slice.
func encodeYAML(patterns []Pattern) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range patterns {
		var value yaml.Node
		if err := value.Encode(p); err != nil {
			return nil, fmt.Errorf("encode pattern %s: %w", p.ID, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.ID},
			&value,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeYAML(data []byte) ([]Pattern, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at line %d", root.Line)
	}

	patterns := make([]Pattern, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		var p Pattern
		if err := root.Content[i+1].Decode(&p); err != nil {
			return nil, fmt.Errorf("decode pattern %s: %w", id, err)
		}
		p.ID = id
		patterns = append(patterns, p)
	}
	return patterns, nil
}
