// Package visibility decides which reconciled guests are shown.
package visibility

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/checkout"
	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/models"
)

// DefaultExcludedNames are system and bot senders that never appear as
// guests.
var DefaultExcludedNames = []string{"LTG:AI-Maintenance", "Mercure Hyde Park"}

// NameLookup supplies checkout dates recorded in the name map.
type NameLookup interface {
	Get(key models.PhoneKey) (models.NameMapEntry, bool)
}

// Filter applies the display rules to a guest list.
type Filter struct {
	names    NameLookup
	excluded map[string]struct{}
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock replaces time.Now for checkout comparisons.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// WithExcludedNames replaces the default exclusion list.
func WithExcludedNames(names []string) Option {
	return func(f *Filter) {
		f.excluded = make(map[string]struct{}, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				f.excluded[n] = struct{}{}
			}
		}
	}
}

// New creates a filter. names may be nil.
func New(names NameLookup, log zerolog.Logger, opts ...Option) *Filter {
	f := &Filter{
		names: names,
		now:   time.Now,
		log:   log.With().Str("component", "VisibilityFilter").Logger(),
	}
	WithExcludedNames(DefaultExcludedNames)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply returns the guests to display, in input order. The rules run in
// a fixed sequence: exclusion list, checkout, template and status
// equality, then failed delivery.
func (f *Filter) Apply(guests []models.GuestRecord, opts models.GetGuestsOptions) []models.GuestRecord {
	now := f.now()
	out := make([]models.GuestRecord, 0, len(guests))
	var excluded, checkedOut, filtered, failed int
	for _, g := range guests {
		switch {
		case f.isExcluded(&g):
			excluded++
		case !opts.IncludeCheckedOut && f.hasCheckedOut(&g, now):
			checkedOut++
		case opts.Template != "" && g.TemplateName != opts.Template,
			opts.Status != "" && g.DeliveryStatus != opts.Status:
			filtered++
		case !opts.IncludeFailed && IsFailed(g.DeliveryStatus):
			failed++
		default:
			out = append(out, g)
		}
	}
	f.log.Debug().
		Int("in", len(guests)).
		Int("out", len(out)).
		Int("excluded", excluded).
		Int("checkedOut", checkedOut).
		Int("filtered", filtered).
		Int("failed", failed).
		Bool("includeCheckedOut", opts.IncludeCheckedOut).
		Bool("includeFailed", opts.IncludeFailed).
		Msg("Applied visibility rules")
	return out
}

func (f *Filter) isExcluded(g *models.GuestRecord) bool {
	for _, name := range []string{g.DisplayName(), strings.TrimSpace(g.FirstName)} {
		if _, ok := f.excluded[name]; ok && name != "" {
			return true
		}
	}
	return false
}

// hasCheckedOut reports whether the resolved checkout date has passed or
// the legacy availability field says zero or fewer days remain. Either
// is enough.
func (f *Filter) hasCheckedOut(g *models.GuestRecord, now time.Time) bool {
	if checkout.Passed(f.checkoutDate(g), now) {
		return true
	}
	if days, ok := AvailableDays(g.AvailableIn); ok && days <= 0 {
		return true
	}
	return false
}

// checkoutDate prefers the guest's own field over the name map entry.
func (f *Filter) checkoutDate(g *models.GuestRecord) string {
	if g.CheckoutDate != "" {
		return g.CheckoutDate
	}
	if f.names == nil {
		return ""
	}
	if e, ok := f.names.Get(identity.Normalize(g.IdentifierValue)); ok {
		return e.CheckoutDate
	}
	return ""
}

// AvailableDays extracts a day count from values like "3 days", "-1" or
// "3-5 days". Non-numeric text is dropped and the leading signed integer
// of what remains is used.
func AvailableDays(raw string) (int, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsFailed reports whether a delivery status denotes a failure, covering
// variants such as "sending_failed".
func IsFailed(status string) bool {
	return strings.Contains(strings.ToLower(status), "failed")
}
