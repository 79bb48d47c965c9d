// Package snapshot fetches guest exports from the local disk and from
// the remote archive, and keeps the archive in order.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/records"
)

// ErrNoSnapshot is returned when no source has an export.
var ErrNoSnapshot = errors.New("no snapshot available")

// Snapshot is one point-in-time export of guest rows.
type Snapshot struct {
	Name    string
	Version string
	Data    []byte
	Rows    []map[string]string
	// Skipped counts malformed rows left out of Rows.
	Skipped int
}

// Source provides the latest export and a cheap change marker.
type Source interface {
	Latest(ctx context.Context) (*Snapshot, error)
	Version(ctx context.Context) (string, error)
}

// Parse decodes CSV data into a snapshot.
func Parse(name, version string, data []byte) (*Snapshot, error) {
	rows, skipped, err := records.ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return &Snapshot{Name: name, Version: version, Data: data, Rows: rows, Skipped: skipped}, nil
}

// Fallback asks each source in turn and returns the first export found.
// Sources earlier in the list are preferred.
type Fallback struct {
	sources []Source
	log     zerolog.Logger
}

// NewFallback creates a fallback chain. Nil sources are skipped.
func NewFallback(log zerolog.Logger, sources ...Source) *Fallback {
	f := &Fallback{log: log.With().Str("component", "SnapshotFallback").Logger()}
	for _, s := range sources {
		if s != nil {
			f.sources = append(f.sources, s)
		}
	}
	return f
}

// Latest returns the first non-empty snapshot. Failing sources are
// logged and skipped.
func (f *Fallback) Latest(ctx context.Context) (*Snapshot, error) {
	for _, s := range f.sources {
		snap, err := s.Latest(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoSnapshot) {
				f.log.Warn().Err(err).Msg("Snapshot source unavailable, trying next")
			}
			continue
		}
		if len(snap.Rows) == 0 {
			continue
		}
		if snap.Skipped > 0 {
			f.log.Warn().Str("snapshot", snap.Name).Int("skipped", snap.Skipped).Msg("Skipped malformed rows")
		}
		return snap, nil
	}
	return nil, ErrNoSnapshot
}

// Version returns the version of the first source that reports one.
func (f *Fallback) Version(ctx context.Context) (string, error) {
	for _, s := range f.sources {
		v, err := s.Version(ctx)
		if err == nil && v != "" {
			return v, nil
		}
	}
	return "", ErrNoSnapshot
}
