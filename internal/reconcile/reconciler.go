// Package reconcile merges the current guest export, recent messages and
// the persisted name map into one record per phone.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/models"
)

// NameStore is the subset of the name map the reconciler reads and
// writes.
type NameStore interface {
	Get(key models.PhoneKey) (models.NameMapEntry, bool)
	UpsertIfRicher(ctx context.Context, key models.PhoneKey, name, checkout string) (bool, error)
}

// Input is everything one pass works from.
type Input struct {
	Rows     []models.FieldTuple
	Messages []models.Message
}

// IndexLookup resolves archived names for the debug trace.
type IndexLookup interface {
	Get(key models.PhoneKey) (*models.IndexEntry, bool)
}

// Reconciler builds guest records. It holds no state between passes.
type Reconciler struct {
	names NameStore
	index IndexLookup
	log   zerolog.Logger
}

// New creates a reconciler over names. index may be nil.
func New(names NameStore, index IndexLookup, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		names: names,
		index: index,
		log:   log.With().Str("component", "Reconciler").Logger(),
	}
}

// pass is the working state of one reconciliation.
type pass struct {
	guests map[models.PhoneKey]*models.GuestRecord
	order  []models.PhoneKey
	csv    map[string]*models.FieldTuple
}

func (p *pass) guest(key models.PhoneKey, identifier string) (*models.GuestRecord, bool) {
	if g, ok := p.guests[key]; ok {
		return g, false
	}
	g := &models.GuestRecord{IdentifierValue: identifier}
	p.guests[key] = g
	p.order = append(p.order, key)
	return g, true
}

// csvRecord finds the export row for a raw phone under any of its forms.
func (p *pass) csvRecord(raw string) *models.FieldTuple {
	for _, k := range identity.Keys(raw) {
		if rec, ok := p.csv[k]; ok {
			return rec
		}
	}
	return nil
}

// Reconcile runs one pass and returns deduplicated records, most
// recently active first. Rows or events that cannot be processed are
// logged and skipped.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) []models.GuestRecord {
	p := &pass{
		guests: make(map[models.PhoneKey]*models.GuestRecord),
		csv:    make(map[string]*models.FieldTuple),
	}

	r.indexRows(p, in.Rows)
	r.seedFromRows(p, in.Rows)

	for i := range in.Messages {
		m := &in.Messages[i]
		r.guard("message", m.ID, func() { r.applyMessage(p, m) })
	}

	r.inferFromEarliest(ctx, p, in.Messages)

	records := dedupe(p)
	r.applyNameMap(records)
	sortByLastSeen(records)
	r.trace(records)
	return records
}

// indexRows builds the export lookup under the normalized key and both
// raw forms. The first row for an identity wins.
func (r *Reconciler) indexRows(p *pass, rows []models.FieldTuple) {
	for i := range rows {
		row := &rows[i]
		if row.Phone == "" {
			continue
		}
		for _, k := range identity.Keys(row.Phone) {
			if _, ok := p.csv[k]; !ok {
				p.csv[k] = row
			}
		}
	}
}

func (r *Reconciler) seedFromRows(p *pass, rows []models.FieldTuple) {
	for i := range rows {
		row := rows[i]
		key := identity.Normalize(row.Phone)
		if !key.Valid() {
			continue
		}
		g, _ := p.guest(key, row.Phone)
		fillFromRow(g, &row)
		if rec := p.csvRecord(row.Phone); rec != nil {
			fillFromRow(g, rec)
		}
	}
}

// fillFromRow copies export fields the record does not have yet.
func fillFromRow(g *models.GuestRecord, row *models.FieldTuple) {
	fill(&g.FirstName, row.FirstName)
	fill(&g.LastName, row.LastName)
	fill(&g.RoomNumber, row.RoomNumber)
	fill(&g.Email, row.Email)
	fill(&g.CheckoutDate, row.CheckoutDate)
	fill(&g.CheckinDate, row.CheckinDate)
	fill(&g.AvailableIn, row.AvailableIn)
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func (r *Reconciler) applyMessage(p *pass, m *models.Message) {
	for _, c := range m.Contacts() {
		phone := identity.Compact(c.IdentifierValue)
		key := identity.Normalize(phone)
		if !key.Valid() {
			continue
		}
		g, created := p.guest(key, phone)
		if created {
			if rec := p.csvRecord(phone); rec != nil {
				fillFromRow(g, rec)
			}
		}

		if !g.HasName() {
			r.resolveName(g, key, &c, m)
		}
		if g.RoomNumber == "" && m.Template != nil {
			room := m.Template.Variables.Lookup("room_number")
			if room == "" {
				room = m.Template.Variables.Lookup("room")
			}
			g.RoomNumber = strings.TrimSpace(room)
		}

		applyActivity(g, m)
		applyDelivery(g, m)
	}
}

// resolveName fills the name from the highest-precedence source that has
// one: contact annotation, template slot, body greeting, name map.
func (r *Reconciler) resolveName(g *models.GuestRecord, key models.PhoneKey, c *models.Contact, m *models.Message) {
	if ann := strings.TrimSpace(c.Annotations.Name); ann != "" {
		g.SetName(ann)
		return
	}
	if name, _ := InferName(m); name != "" {
		g.SetName(name)
		return
	}
	if entry, ok := r.names.Get(key); ok && entry.Name != "" {
		g.SetName(entry.Name)
		fill(&g.CheckoutDate, entry.CheckoutDate)
	}
}

// applyActivity keeps the newest message by timestamp, not by arrival.
func applyActivity(g *models.GuestRecord, m *models.Message) {
	if m.CreatedAt.IsZero() {
		fill(&g.LastMessage, m.Body.Preview())
		return
	}
	if g.LastSeen != nil && !m.CreatedAt.After(*g.LastSeen) {
		return
	}
	at := m.CreatedAt
	g.LastSeen = &at
	g.LastMessage = m.Body.Preview()
	if dir := m.ResolvedDirection(); dir != "" {
		g.LastDirection = dir
	}
}

func applyDelivery(g *models.GuestRecord, m *models.Message) {
	if m.Template != nil && m.Template.Name != "" {
		g.TemplateName = m.Template.Name
	}
	if m.Status != "" {
		g.DeliveryStatus = m.Status
	}
	if m.Failure == nil {
		return
	}
	if m.Failure.Description != "" {
		g.DeliveryReason = m.Failure.Description
	}
	if m.Status == "" && g.DeliveryStatus == "" {
		g.DeliveryStatus = "failed"
	}
	if code := m.Failure.ResolvedCode(); code != "" {
		g.DeliveryCode = code
	}
}

// inferFromEarliest groups messages by phone and, oldest message first,
// looks for a name. A found name fills a nameless record and is written
// to the name map so later passes need not infer it again.
func (r *Reconciler) inferFromEarliest(ctx context.Context, p *pass, msgs []models.Message) {
	byPhone := make(map[models.PhoneKey][]*models.Message)
	raw := make(map[models.PhoneKey]string)
	for i := range msgs {
		m := &msgs[i]
		phone := identity.Compact(m.PrimaryIdentifier())
		key := identity.Normalize(phone)
		if !key.Valid() {
			continue
		}
		byPhone[key] = append(byPhone[key], m)
		if _, ok := raw[key]; !ok {
			raw[key] = phone
		}
	}

	keys := make([]models.PhoneKey, 0, len(byPhone))
	for k := range byPhone {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		group := byPhone[key]
		sort.SliceStable(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })

		name, src := earliestName(group)
		if name == "" {
			continue
		}
		g, _ := p.guest(key, raw[key])
		if !g.HasName() {
			g.SetName(name)
		}
		if _, err := r.names.UpsertIfRicher(ctx, key, name, ""); err != nil {
			r.log.Warn().Err(err).Str("phone", string(key)).Msg("Failed to persist inferred name")
			continue
		}
		r.log.Debug().Str("phone", string(key)).Str("name", name).Str("source", string(src)).Msg("Name inferred from earliest message")
	}
}

// dedupe collapses records whose identifiers normalize to the same key,
// keeping the first and filling its blanks from the others.
func dedupe(p *pass) []models.GuestRecord {
	out := make([]models.GuestRecord, 0, len(p.order))
	index := make(map[models.PhoneKey]int, len(p.order))
	for _, key := range p.order {
		g := p.guests[key]
		id := identity.Normalize(g.IdentifierValue)
		if !id.Valid() {
			id = key
		}
		if i, ok := index[id]; ok {
			mergeRecord(&out[i], g)
			continue
		}
		index[id] = len(out)
		out = append(out, *g)
	}
	return out
}

func mergeRecord(dst, src *models.GuestRecord) {
	if !dst.HasName() {
		dst.FirstName, dst.LastName = src.FirstName, src.LastName
	}
	fill(&dst.RoomNumber, src.RoomNumber)
	fill(&dst.Email, src.Email)
	fill(&dst.CheckoutDate, src.CheckoutDate)
	fill(&dst.CheckinDate, src.CheckinDate)
	fill(&dst.AvailableIn, src.AvailableIn)
	if src.LastSeen != nil && (dst.LastSeen == nil || src.LastSeen.After(*dst.LastSeen)) {
		dst.LastSeen, dst.LastMessage, dst.LastDirection = src.LastSeen, src.LastMessage, src.LastDirection
	}
	fill(&dst.TemplateName, src.TemplateName)
	fill(&dst.DeliveryStatus, src.DeliveryStatus)
	fill(&dst.DeliveryReason, src.DeliveryReason)
	fill(&dst.DeliveryCode, src.DeliveryCode)
}

// applyNameMap names any record still missing a name from the name map.
func (r *Reconciler) applyNameMap(records []models.GuestRecord) {
	for i := range records {
		g := &records[i]
		if g.HasName() {
			continue
		}
		entry, ok := r.names.Get(identity.Normalize(g.IdentifierValue))
		if !ok || entry.Name == "" {
			continue
		}
		g.SetName(entry.Name)
		if entry.CheckoutDate != "" {
			g.CheckoutDate = entry.CheckoutDate
		}
		r.log.Debug().Str("phone", g.IdentifierValue).Str("name", g.DisplayName()).Msg("Applied name map entry")
	}
}

func sortByLastSeen(records []models.GuestRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].LastSeen, records[j].LastSeen
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func (r *Reconciler) trace(records []models.GuestRecord) {
	if r.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	for i := range records {
		g := &records[i]
		key := identity.Normalize(g.IdentifierValue)
		explicit := g.DisplayName()

		var indexed, mapped string
		if r.index != nil {
			if e, ok := r.index.Get(key); ok {
				indexed = e.Name
			}
		}
		if e, ok := r.names.Get(key); ok {
			mapped = e.Name
		}

		display := explicit
		for _, candidate := range []string{indexed, mapped, g.IdentifierValue} {
			if display == "" {
				display = candidate
			}
		}
		r.log.Debug().
			Str("phone", g.IdentifierValue).
			Str("norm", string(key)).
			Str("explicit", explicit).
			Str("index", indexed).
			Str("persist", mapped).
			Str("display", display).
			Msg("Guest display name")
	}
}

// guard runs fn and turns a panic from malformed input into a skipped
// item.
func (r *Reconciler) guard(kind, id string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn().Str(kind, id).Str("error", fmt.Sprint(rec)).Msg("Skipping malformed " + kind)
		}
	}()
	fn()
}
