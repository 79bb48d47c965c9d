package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileStore keeps each namespace as one JSON object file in a directory,
// so the files stay readable by hand and by older tooling.
type FileStore struct {
	mu         sync.Mutex
	dir        string
	namespaces map[string]map[string]json.RawMessage
	log        zerolog.Logger
}

// NewFileStore creates a new file-backed store rooted at dir.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{
		dir:        dir,
		namespaces: make(map[string]map[string]json.RawMessage),
		log:        o.log.With().Str("component", "FileStore").Logger(),
	}, nil
}

// Path returns the file backing a namespace.
func (s *FileStore) Path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// Get retrieves one value.
func (s *FileStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.load(namespace)
	v, ok := ns[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores one value and flushes the namespace file.
func (s *FileStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	return s.PutMany(ctx, namespace, map[string][]byte{key: value})
}

// PutMany stores values and flushes the namespace file once.
func (s *FileStore) PutMany(_ context.Context, namespace string, values map[string][]byte) error {
	for key, v := range values {
		if !json.Valid(v) {
			return fmt.Errorf("value for %s/%s is not valid JSON", namespace, key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.load(namespace)
	next := make(map[string]json.RawMessage, len(ns)+len(values))
	for k, v := range ns {
		next[k] = v
	}
	for k, v := range values {
		next[k] = append(json.RawMessage(nil), v...)
	}
	if err := s.save(namespace, next); err != nil {
		return err
	}
	s.namespaces[namespace] = next
	return nil
}

// All returns a copy of every value in a namespace.
func (s *FileStore) All(_ context.Context, namespace string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.load(namespace)
	out := make(map[string][]byte, len(ns))
	for k, v := range ns {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Close is a no-op; every write is already on disk.
func (s *FileStore) Close() error { return nil }

// load returns the cached namespace, reading it from disk on first use.
// A corrupt file is moved aside and the namespace starts empty.
// Callers hold s.mu.
func (s *FileStore) load(namespace string) map[string]json.RawMessage {
	if ns, ok := s.namespaces[namespace]; ok {
		return ns
	}
	ns := make(map[string]json.RawMessage)
	path := s.Path(namespace)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		s.log.Error().Err(err).Str("file", path).Msg("Failed to read store file, starting empty")
	case len(data) == 0:
	default:
		if err := json.Unmarshal(data, &ns); err != nil {
			aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
			s.log.Error().Err(err).Str("file", path).Str("moved_to", aside).Msg("Store file is corrupt, starting empty")
			_ = os.Rename(path, aside)
			ns = make(map[string]json.RawMessage)
		}
	}
	s.namespaces[namespace] = ns
	return ns
}

// save writes the namespace through a temp file and rename so readers
// never see a half-written file.
func (s *FileStore) save(namespace string, ns map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(ns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path(namespace))
}
