// Package blocklist records phones that already received a templated
// message. The set only grows.
package blocklist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/models"
	"hotel-messaging/internal/storage"
)

type record struct {
	SentAt time.Time `json:"sentAt"`
}

// Blocklist is the persisted set of phones that must not receive another
// templated message.
type Blocklist struct {
	mu     sync.RWMutex
	kv     storage.KV
	phones map[models.PhoneKey]time.Time
	log    zerolog.Logger
}

// Load reads the persisted set.
func Load(ctx context.Context, kv storage.KV, log zerolog.Logger) (*Blocklist, error) {
	b := &Blocklist{
		kv:     kv,
		phones: make(map[models.PhoneKey]time.Time),
		log:    log.With().Str("component", "Blocklist").Logger(),
	}
	raw, err := kv.All(ctx, storage.NamespaceBlocklist)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocklist: %w", err)
	}
	for k, v := range raw {
		var r record
		if err := json.Unmarshal(v, &r); err != nil {
			// Presence is what matters; keep the phone even if the
			// record body is unreadable.
			b.log.Warn().Err(err).Str("phone", k).Msg("Unreadable blocklist record")
		}
		b.phones[models.PhoneKey(k)] = r.SentAt
	}
	return b, nil
}

// Contains reports whether key already received a template.
func (b *Blocklist) Contains(key models.PhoneKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.phones[key]
	return ok
}

// Add records key, flushing before returning. Adding a present key is a
// no-op that reports false.
func (b *Blocklist) Add(ctx context.Context, key models.PhoneKey, at time.Time) (bool, error) {
	if !key.Valid() {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.phones[key]; ok {
		return false, nil
	}
	data, err := json.Marshal(record{SentAt: at.UTC()})
	if err != nil {
		return false, err
	}
	if err := b.kv.Put(ctx, storage.NamespaceBlocklist, string(key), data); err != nil {
		return false, fmt.Errorf("failed to save blocklist: %w", err)
	}
	b.phones[key] = at.UTC()
	return true, nil
}

// All returns the blocked phones in sorted order.
func (b *Blocklist) All() []models.PhoneKey {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.PhoneKey, 0, len(b.phones))
	for k := range b.phones {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
