package phoneindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/models"
	"hotel-messaging/internal/storage"
)

// Store holds the persisted index. Writes are serialized and flushed
// before the in-memory copy is replaced.
type Store struct {
	mu      sync.RWMutex
	kv      storage.KV
	entries Index
	log     zerolog.Logger
}

// Load reads the persisted index. Unreadable entries are skipped.
func Load(ctx context.Context, kv storage.KV, log zerolog.Logger) (*Store, error) {
	s := &Store{
		kv:      kv,
		entries: make(Index),
		log:     log.With().Str("component", "PhoneIndex").Logger(),
	}
	raw, err := kv.All(ctx, storage.NamespacePhoneIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to load phone index: %w", err)
	}
	for k, v := range raw {
		var entry models.IndexEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			s.log.Warn().Err(err).Str("phone", k).Msg("Skipping unreadable phone index entry")
			continue
		}
		s.entries[models.PhoneKey(k)] = &entry
	}
	return s, nil
}

// All returns a deep copy of the index.
func (s *Store) All() Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Clone()
}

// Get returns a copy of one entry.
func (s *Store) Get(key models.PhoneKey) (*models.IndexEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.Clone(), ok
}

// RecordObservations folds the rows of one source file into the index and
// returns the number of new occurrences.
func (s *Store) RecordObservations(ctx context.Context, sourceFile string, rows []models.FieldTuple) (int, error) {
	return s.MergeIndex(ctx, Build(sourceFile, rows))
}

// MergeIndex folds incoming into the persisted index, flushing only the
// entries that changed. It returns the number of new occurrences.
func (s *Store) MergeIndex(ctx context.Context, incoming Index) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(map[string][]byte)
	next := make(Index, len(incoming))
	added := 0
	for k, src := range incoming {
		if !k.Valid() || src == nil {
			continue
		}
		before := s.entries[k]
		merged := mergeEntry(before, src)
		if before != nil && !differs(before, merged) {
			continue
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal index entry %s: %w", k, err)
		}
		changed[string(k)] = data
		next[k] = merged
		if before != nil {
			added += len(merged.Occurrences) - len(before.Occurrences)
		} else {
			added += len(merged.Occurrences)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.kv.PutMany(ctx, storage.NamespacePhoneIndex, changed); err != nil {
		return 0, fmt.Errorf("failed to save phone index: %w", err)
	}
	for k, v := range next {
		s.entries[k] = v
	}
	s.log.Info().Int("entries", len(changed)).Int("occurrences_added", added).Msg("Phone index updated")
	return added, nil
}

func differs(a, b *models.IndexEntry) bool {
	return a.Name != b.Name || a.LatestCheckout != b.LatestCheckout || len(a.Occurrences) != len(b.Occurrences)
}

// MarshalJSON renders the index in its published shape.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.All())
}
