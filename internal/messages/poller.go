package messages

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/models"
)

// Poller remembers which messages it has already seen and reports only
// new ones, oldest first.
type Poller struct {
	source Source
	limit  int
	onNew  func(models.Message)
	log    zerolog.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	primed bool
}

// NewPoller creates a poller. onNew may be nil, in which case new
// messages are only logged.
func NewPoller(source Source, limit int, onNew func(models.Message), log zerolog.Logger) *Poller {
	return &Poller{
		source: source,
		limit:  limit,
		onNew:  onNew,
		log:    log.With().Str("component", "MessagePoller").Logger(),
		seen:   make(map[string]struct{}),
	}
}

// Prime marks everything currently available as seen.
func (p *Poller) Prime(ctx context.Context) error {
	msgs, err := p.source.FetchRecent(ctx, p.limit)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if m.ID != "" {
			p.seen[m.ID] = struct{}{}
		}
	}
	p.primed = true
	p.log.Debug().Int("seen", len(p.seen)).Msg("Primed message poller")
	return nil
}

// Poll fetches recent messages and returns the unseen ones, oldest
// first. The first call on an unprimed poller primes it instead.
func (p *Poller) Poll(ctx context.Context) ([]models.Message, error) {
	p.mu.Lock()
	primed := p.primed
	p.mu.Unlock()
	if !primed {
		return nil, p.Prime(ctx)
	}

	msgs, err := p.source.FetchRecent(ctx, p.limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	p.mu.Lock()
	var fresh []models.Message
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	p.mu.Unlock()

	for _, m := range fresh {
		p.log.Info().
			Str("id", m.ID).
			Str("direction", m.ResolvedDirection()).
			Str("phone", m.PrimaryIdentifier()).
			Msg("New message")
		if p.onNew != nil {
			p.onNew(m)
		}
	}
	return fresh, nil
}
