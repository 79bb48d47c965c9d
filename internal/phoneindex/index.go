// Package phoneindex aggregates every archived guest export into an
// append-only, per-phone history of observations.
package phoneindex

import (
	"time"

	"hotel-messaging/internal/checkout"
	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/models"
)

// Index maps a phone key to its aggregated history.
type Index map[models.PhoneKey]*models.IndexEntry

// Archive is one export file reduced to field tuples.
type Archive struct {
	Name string
	Rows []models.FieldTuple
}

// Clone returns a deep copy of the index.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for k, v := range idx {
		out[k] = v.Clone()
	}
	return out
}

// Occurrences returns the total number of occurrences in the index.
func (idx Index) Occurrences() int {
	n := 0
	for _, e := range idx {
		n += len(e.Occurrences)
	}
	return n
}

// Build indexes the rows of one source file. Rows without a phone are
// skipped; repeated identical rows collapse to one occurrence.
func Build(sourceFile string, rows []models.FieldTuple) Index {
	idx := make(Index)
	for _, row := range rows {
		key := identity.Normalize(row.Phone)
		if !key.Valid() {
			continue
		}
		observed := &models.IndexEntry{
			Name: row.FullName(),
			Occurrences: []models.Occurrence{{
				File:         sourceFile,
				Phone:        row.Phone,
				CheckoutDate: row.CheckoutDate,
				FirstName:    row.FirstName,
				LastName:     row.LastName,
				RoomNumber:   row.RoomNumber,
			}},
			LatestCheckout: row.CheckoutDate,
		}
		idx[key] = mergeEntry(idx[key], observed)
	}
	return idx
}

// BuildArchives indexes several archives into one index.
func BuildArchives(archives []Archive) Index {
	idx := make(Index)
	for _, a := range archives {
		idx = Merge(idx, Build(a.Name, a.Rows))
	}
	return idx
}

// Merge unions two indexes without modifying either. Occurrences are
// unioned by signature and never dropped, the existing name is kept when
// present, and the latest checkout is recomputed over both sides.
func Merge(existing, incoming Index) Index {
	out := existing.Clone()
	for k, src := range incoming {
		if !k.Valid() || src == nil {
			continue
		}
		out[k] = mergeEntry(out[k], src)
	}
	return out
}

// mergeEntry folds src into a copy of dst.
func mergeEntry(dst, src *models.IndexEntry) *models.IndexEntry {
	merged := dst.Clone()
	if merged == nil {
		merged = &models.IndexEntry{}
	}

	seen := make(map[string]bool, len(merged.Occurrences))
	for _, o := range merged.Occurrences {
		seen[o.Signature()] = true
	}
	for _, o := range src.Occurrences {
		sig := o.Signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		merged.Occurrences = append(merged.Occurrences, o)
	}

	if merged.Name == "" {
		merged.Name = src.Name
	}

	candidates := []string{merged.LatestCheckout, src.LatestCheckout}
	for _, o := range merged.Occurrences {
		candidates = append(candidates, o.CheckoutDate)
	}
	merged.LatestCheckout = Latest(candidates)
	return merged
}

// Latest picks the chronologically latest parseable date. Among equal
// dates the earlier candidate is kept. An unparseable value is returned
// only when nothing parses, and then the first one wins.
func Latest(candidates []string) string {
	var (
		best       string
		bestTime   time.Time
		bestParsed bool
	)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, ok := checkout.Parse(c); ok {
			if !bestParsed || t.After(bestTime) {
				best, bestTime, bestParsed = c, t, true
			}
			continue
		}
		if best == "" {
			best = c
		}
	}
	return best
}
