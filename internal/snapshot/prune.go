package snapshot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	dashedDatePattern  = regexp.MustCompile(`(20\d{2}-[01]\d-[0-3]\d)`)
	compactDatePattern = regexp.MustCompile(`(20\d{2}[01]\d[0-3]\d)`)
)

// DateKey extracts a YYYYMMDD key from a blob name, or "" if it has none.
func DateKey(name string) string {
	if m := dashedDatePattern.FindStringSubmatch(name); m != nil {
		return strings.ReplaceAll(m[1], "-", "")
	}
	if m := compactDatePattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// Removal is one blob pruning would delete.
type Removal struct {
	DateKey string
	Keep    string
	Remove  BlobInfo
}

// PruneResult reports what a prune found and did.
type PruneResult struct {
	Dates    int
	Removals []Removal
	Deleted  []string
	Failed   []string
}

// PlanPrune keeps the newest blob per date key and lists the rest.
// Blobs without a date key are never touched.
func PlanPrune(blobs []BlobInfo) (dates int, removals []Removal) {
	groups := make(map[string][]BlobInfo)
	for _, b := range blobs {
		if key := DateKey(b.Name); key != "" {
			groups[key] = append(groups[key], b)
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].LastModified.After(group[j].LastModified) })
		for _, b := range group[1:] {
			removals = append(removals, Removal{DateKey: k, Keep: group[0].Name, Remove: b})
		}
	}
	return len(keys), removals
}

// Prune removes all but the newest archive per date. With dryRun set it
// only reports what it would delete.
func (s *BlobStore) Prune(ctx context.Context, dryRun bool) (PruneResult, error) {
	blobs, err := s.bucket.List(ctx, s.archives)
	if err != nil {
		return PruneResult{}, fmt.Errorf("failed to list archives: %w", err)
	}
	var res PruneResult
	res.Dates, res.Removals = PlanPrune(blobs)
	if dryRun {
		return res, nil
	}
	for _, r := range res.Removals {
		if err := s.bucket.Delete(ctx, s.archives, r.Remove.Name); err != nil {
			s.log.Warn().Err(err).Str("blob", r.Remove.Name).Msg("Failed to delete archive")
			res.Failed = append(res.Failed, r.Remove.Name)
			continue
		}
		res.Deleted = append(res.Deleted, r.Remove.Name)
		s.log.Info().Str("blob", r.Remove.Name).Str("kept", r.Keep).Msg("Deleted archive")
	}
	return res, nil
}
