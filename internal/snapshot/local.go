package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/phoneindex"
	"hotel-messaging/internal/records"
)

// archiveHints are substrings that mark a CSV file as a guest export.
var archiveHints = []string{"instay", "output", "guest"}

// IsArchiveName reports whether a file name looks like a guest export.
func IsArchiveName(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	if filepath.Ext(lower) != ".csv" {
		return false
	}
	for _, h := range archiveHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// LocalArchives reads every guest export found directly inside dirs.
// Missing directories and unreadable files are skipped.
func LocalArchives(dirs []string, log zerolog.Logger) []phoneindex.Archive {
	var out []phoneindex.Archive
	seen := make(map[string]bool)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("dir", dir).Msg("Failed to list archive directory")
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !IsArchiveName(e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			abs, err := filepath.Abs(path)
			if err == nil {
				if seen[abs] {
					continue
				}
				seen[abs] = true
			}
			f, err := os.Open(path)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Msg("Failed to open archive")
				continue
			}
			rows, skipped, err := records.ParseCSV(f)
			f.Close()
			if err != nil {
				log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable archive")
				continue
			}
			if skipped > 0 {
				log.Warn().Str("file", path).Int("skipped", skipped).Msg("Skipped malformed rows")
			}
			out = append(out, phoneindex.Archive{Name: e.Name(), Rows: records.ExtractAll(rows)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
