package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/blocklist"
	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/messages"
	"hotel-messaging/internal/models"
	"hotel-messaging/internal/namemap"
	"hotel-messaging/internal/phoneindex"
	"hotel-messaging/internal/reconcile"
	"hotel-messaging/internal/records"
	"hotel-messaging/internal/snapshot"
	"hotel-messaging/internal/visibility"
)

var (
	// ErrAlreadySent is returned when a phone already received a template.
	ErrAlreadySent = errors.New("template already sent to this phone")
	// ErrNoSender is returned when no template sender is configured.
	ErrNoSender = errors.New("no template sender configured")
)

// TemplateSender delivers templated messages.
type TemplateSender interface {
	SendTemplate(ctx context.Context, phone, template, text string, vars models.TemplateVariables) error
}

// Deps are the collaborators a Dashboard works with. Blobs, Messages and
// Sender may be nil.
type Deps struct {
	Local     *snapshot.FileSource
	Blobs     *snapshot.BlobStore
	Messages  messages.Source
	Sender    TemplateSender
	Names     *namemap.Map
	Index     *phoneindex.Store
	Blocklist *blocklist.Blocklist
}

// Config tunes the dashboard. Now overrides the clock used for checkout
// visibility and blocklist timestamps.
type Config struct {
	ArchiveDirs   []string
	MessageLimit  int
	ExcludedNames []string
	Now           func() time.Time
}

// Dashboard answers guest list queries and keeps the durable stores up
// to date as exports and messages arrive.
type Dashboard struct {
	local     *snapshot.FileSource
	blobs     *snapshot.BlobStore
	snapshots snapshot.Source
	messages  messages.Source
	sender    TemplateSender
	names     *namemap.Map
	index     *phoneindex.Store
	blocklist *blocklist.Blocklist

	reconciler *reconcile.Reconciler
	filter     *visibility.Filter
	config     *Config
	now        func() time.Time
	log        zerolog.Logger

	// versions last ingested, so a remote download does not come back
	// around as a local change.
	mu            sync.Mutex
	localVersion  string
	remoteVersion string

	// ingestMu serializes snapshot checks so one change is ingested once.
	ingestMu sync.Mutex
	// sendMu keeps the blocklist check and add atomic around a send.
	sendMu sync.Mutex
}

// NewDashboard wires the engine together.
func NewDashboard(deps Deps, cfg *Config, log zerolog.Logger) *Dashboard {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := log.With().Str("component", "Dashboard").Logger()

	var sources []snapshot.Source
	if deps.Blobs != nil {
		sources = append(sources, deps.Blobs)
	}
	if deps.Local != nil {
		sources = append(sources, deps.Local)
	}
	msgs := deps.Messages
	if msgs == nil {
		msgs = messages.None{}
	}

	opts := []visibility.Option{visibility.WithClock(now)}
	if cfg.ExcludedNames != nil {
		opts = append(opts, visibility.WithExcludedNames(cfg.ExcludedNames))
	}

	var index reconcile.IndexLookup
	if deps.Index != nil {
		index = deps.Index
	}

	return &Dashboard{
		local:      deps.Local,
		blobs:      deps.Blobs,
		snapshots:  snapshot.NewFallback(log, sources...),
		messages:   msgs,
		sender:     deps.Sender,
		names:      deps.Names,
		index:      deps.Index,
		blocklist:  deps.Blocklist,
		reconciler: reconcile.New(deps.Names, index, log),
		filter:     visibility.New(deps.Names, log, opts...),
		config:     cfg,
		now:        now,
		log:        logger,
	}
}

// GetGuests runs one reconciliation pass and returns the visible guests.
// Unavailable sources shrink the result instead of failing it.
func (d *Dashboard) GetGuests(ctx context.Context, opts models.GetGuestsOptions) ([]models.GuestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := d.currentRows(ctx)
	if len(rows) > 0 {
		if _, err := d.names.UpsertRecords(ctx, rows); err != nil {
			d.log.Warn().Err(err).Msg("Failed to import snapshot names")
		}
	}

	msgs, err := d.messages.FetchRecent(ctx, d.config.MessageLimit)
	if err != nil {
		d.log.Warn().Err(err).Msg("Message source unavailable, continuing without messages")
		msgs = nil
	}

	all := d.reconciler.Reconcile(ctx, reconcile.Input{Rows: rows, Messages: msgs})
	guests := d.filter.Apply(all, opts)
	d.log.Info().
		Int("rows", len(rows)).
		Int("messages", len(msgs)).
		Int("reconciled", len(all)).
		Int("returned", len(guests)).
		Bool("includeCheckedOut", opts.IncludeCheckedOut).
		Bool("includeFailed", opts.IncludeFailed).
		Msg("Returning guests")
	return guests, nil
}

// currentRows extracts the preferred snapshot, or nothing if none is
// available.
func (d *Dashboard) currentRows(ctx context.Context) []models.FieldTuple {
	snap, err := d.snapshots.Latest(ctx)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNoSnapshot) {
			d.log.Warn().Err(err).Msg("Snapshot unavailable")
		}
		return nil
	}
	d.log.Debug().Str("snapshot", snap.Name).Int("rows", len(snap.Rows)).Msg("Loaded snapshot")
	return records.ExtractAll(snap.Rows)
}

// GetNameMap returns a copy of the name map.
func (d *Dashboard) GetNameMap() map[models.PhoneKey]models.NameMapEntry {
	return d.names.All()
}

// GetOccurrenceIndex returns a copy of the occurrence index.
func (d *Dashboard) GetOccurrenceIndex() phoneindex.Index {
	return d.index.All()
}

// SyncNameMapFromSnapshot overwrites the name map from the current
// snapshot and normalizes legacy entries.
func (d *Dashboard) SyncNameMapFromSnapshot(ctx context.Context) (namemap.SyncResult, error) {
	snap, err := d.snapshots.Latest(ctx)
	if err != nil {
		return namemap.SyncResult{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	res, err := d.names.SyncFromRecords(ctx, records.ExtractAll(snap.Rows))
	if err != nil {
		return namemap.SyncResult{}, err
	}
	d.log.Info().Str("snapshot", snap.Name).Int("updated", res.Updated).Int("total", res.Total).Msg("Name map synced from snapshot")
	d.publish(ctx, snapshot.NameMapBlob, d.names)
	return res, nil
}

// SetName records an explicit name for phone, replacing any entry.
func (d *Dashboard) SetName(ctx context.Context, phone, name, checkout string) error {
	key := identity.Normalize(phone)
	if !key.Valid() {
		return fmt.Errorf("invalid phone number %q", phone)
	}
	if err := d.names.Overwrite(ctx, key, name, checkout); err != nil {
		return err
	}
	d.log.Info().Str("phone", string(key)).Str("name", name).Msg("Name set manually")
	d.publish(ctx, snapshot.NameMapBlob, d.names)
	return nil
}

// SendTemplate sends a template once per phone. A phone that already
// received one gets ErrAlreadySent.
func (d *Dashboard) SendTemplate(ctx context.Context, phone, template, text string, vars models.TemplateVariables) error {
	key := identity.Normalize(phone)
	if !key.Valid() {
		return fmt.Errorf("invalid phone number %q", phone)
	}
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.blocklist.Contains(key) {
		return ErrAlreadySent
	}
	if d.sender == nil {
		return ErrNoSender
	}
	if err := d.sender.SendTemplate(ctx, phone, template, text, vars); err != nil {
		return fmt.Errorf("failed to send template: %w", err)
	}
	if _, err := d.blocklist.Add(ctx, key, d.now()); err != nil {
		return err
	}
	if name := reconcile.NameFromSlots(vars); name != "" {
		if _, err := d.names.UpsertIfRicher(ctx, key, name, ""); err != nil {
			d.log.Warn().Err(err).Str("phone", string(key)).Msg("Failed to record name from template")
		}
	}
	d.publish(ctx, snapshot.BlocklistBlob, d.blocklist.All())
	return nil
}
