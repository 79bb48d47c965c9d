package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// FileSource reads the export cached on local disk.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the CSV at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file location.
func (s *FileSource) Path() string { return s.path }

// Version is the file's modification time and size.
func (s *FileSource) Version(_ context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat snapshot: %w", err)
	}
	return fileVersion(info), nil
}

func fileVersion(info os.FileInfo) string {
	return info.ModTime().UTC().Format("20060102T150405.000000000") + "-" + strconv.FormatInt(info.Size(), 10)
}

// Latest reads and parses the file.
func (s *FileSource) Latest(_ context.Context) (*Snapshot, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Parse(filepath.Base(s.path), fileVersion(info), data)
}

// Replace writes data as the new cached export.
func (s *FileSource) Replace(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
