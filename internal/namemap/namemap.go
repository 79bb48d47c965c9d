// Package namemap is the durable phone -> name mapping that keeps guest
// names across spreadsheet refreshes.
package namemap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/models"
	"hotel-messaging/internal/storage"
)

// Map is the in-memory replica of the persisted name map. Every mutation
// is flushed to the store before the in-memory copy changes, so readers
// only ever see entries that are already durable.
type Map struct {
	mu      sync.RWMutex
	kv      storage.KV
	entries map[models.PhoneKey]models.NameMapEntry
	log     zerolog.Logger
}

// SyncResult reports the outcome of a forced sync.
type SyncResult struct {
	Updated int `json:"updated"`
	Total   int `json:"totalMappings"`
}

// Load reads every entry from kv. Entries that fail to decode are logged
// and skipped.
func Load(ctx context.Context, kv storage.KV, log zerolog.Logger) (*Map, error) {
	m := &Map{
		kv:      kv,
		entries: make(map[models.PhoneKey]models.NameMapEntry),
		log:     log.With().Str("component", "NameMap").Logger(),
	}
	raw, err := kv.All(ctx, storage.NamespaceNameMap)
	if err != nil {
		return nil, fmt.Errorf("failed to load name map: %w", err)
	}
	for k, v := range raw {
		var entry models.NameMapEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			m.log.Warn().Err(err).Str("phone", k).Msg("Skipping unreadable name map entry")
			continue
		}
		m.entries[models.PhoneKey(k)] = entry
	}
	return m, nil
}

// Get returns the entry for key.
func (m *Map) Get(key models.PhoneKey) (models.NameMapEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

// All returns a copy of every entry.
func (m *Map) All() map[models.PhoneKey]models.NameMapEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[models.PhoneKey]models.NameMapEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// richer returns the entry that results from offering name and checkout
// for an identity, and whether that differs from the current entry.
// A present name is never replaced and a present checkout date is never
// changed; only absent information is filled in.
func richer(current models.NameMapEntry, exists bool, name, checkout string) (models.NameMapEntry, bool) {
	if !exists || current.Name == "" {
		if name == "" {
			return current, false
		}
		next := models.NameMapEntry{Name: name, CheckoutDate: current.CheckoutDate}
		if next.CheckoutDate == "" {
			next.CheckoutDate = checkout
		}
		return next, true
	}
	if checkout != "" && current.CheckoutDate == "" {
		next := current.Structured()
		next.CheckoutDate = checkout
		return next, true
	}
	return current, false
}

// UpsertIfRicher stores name and checkout for key when that adds
// information. It reports whether a write happened.
func (m *Map) UpsertIfRicher(ctx context.Context, key models.PhoneKey, name, checkout string) (bool, error) {
	if !key.Valid() {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.entries[key]
	next, changed := richer(current, exists, strings.TrimSpace(name), strings.TrimSpace(checkout))
	if !changed {
		return false, nil
	}
	if err := m.flush(ctx, map[models.PhoneKey]models.NameMapEntry{key: next}); err != nil {
		return false, err
	}
	m.log.Info().Str("phone", string(key)).Str("name", next.Name).Str("checkout", next.CheckoutDate).Msg("Name map updated")
	return true, nil
}

// UpsertRecords applies UpsertIfRicher for every row with a phone and a
// name, flushing once. It returns the number of entries written.
func (m *Map) UpsertRecords(ctx context.Context, rows []models.FieldTuple) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make(map[models.PhoneKey]models.NameMapEntry)
	for _, row := range rows {
		key := identity.Normalize(row.Phone)
		name := row.FullName()
		if !key.Valid() || name == "" {
			continue
		}
		current, exists := pending[key]
		if !exists {
			current, exists = m.entries[key]
		}
		if next, changed := richer(current, exists, name, row.CheckoutDate); changed {
			pending[key] = next
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := m.flush(ctx, pending); err != nil {
		return 0, err
	}
	m.log.Info().Int("updated", len(pending)).Msg("Name map imported from records")
	return len(pending), nil
}

// MergeRemote adopts remote entries for keys the local map does not have.
// Local entries always win on conflict.
func (m *Map) MergeRemote(ctx context.Context, remote map[string]models.NameMapEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make(map[models.PhoneKey]models.NameMapEntry)
	for k, v := range remote {
		key := models.PhoneKey(k)
		if !key.Valid() {
			continue
		}
		if _, ok := m.entries[key]; ok {
			continue
		}
		pending[key] = v
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := m.flush(ctx, pending); err != nil {
		return 0, err
	}
	m.log.Info().Int("adopted", len(pending)).Msg("Merged remote name map")
	return len(pending), nil
}

// Overwrite replaces the entry for key unconditionally.
func (m *Map) Overwrite(ctx context.Context, key models.PhoneKey, name, checkout string) error {
	if !key.Valid() {
		return fmt.Errorf("overwrite: empty phone key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := models.NameMapEntry{Name: strings.TrimSpace(name), CheckoutDate: strings.TrimSpace(checkout)}
	return m.flush(ctx, map[models.PhoneKey]models.NameMapEntry{key: entry})
}

// SyncFromRecords treats rows as the source of truth: every row with a
// phone and a name overwrites its entry, and every remaining legacy
// bare-string entry is rewritten in the structured shape.
func (m *Map) SyncFromRecords(ctx context.Context, rows []models.FieldTuple) (SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make(map[models.PhoneKey]models.NameMapEntry)
	updated := 0
	for _, row := range rows {
		key := identity.Normalize(row.Phone)
		name := row.FullName()
		if !key.Valid() || name == "" {
			continue
		}
		pending[key] = models.NameMapEntry{Name: name, CheckoutDate: row.CheckoutDate}
		updated++
	}
	for k, v := range m.entries {
		if _, ok := pending[k]; ok || !v.Legacy {
			continue
		}
		pending[k] = v.Structured()
	}
	if len(pending) > 0 {
		if err := m.flush(ctx, pending); err != nil {
			return SyncResult{}, err
		}
	}
	return SyncResult{Updated: updated, Total: len(m.entries)}, nil
}

// flush persists entries and then applies them in memory. Callers hold
// the write lock.
func (m *Map) flush(ctx context.Context, entries map[models.PhoneKey]models.NameMapEntry) error {
	values := make(map[string][]byte, len(entries))
	for k, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal entry %s: %w", k, err)
		}
		values[string(k)] = data
	}
	if err := m.kv.PutMany(ctx, storage.NamespaceNameMap, values); err != nil {
		return fmt.Errorf("failed to save name map: %w", err)
	}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

// MarshalJSON renders the whole map in its on-disk shape.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.All())
}
