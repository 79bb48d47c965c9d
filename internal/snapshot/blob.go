package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/models"
	"hotel-messaging/internal/phoneindex"
	"hotel-messaging/internal/records"
)

// Blob names in the maps container.
const (
	NameMapBlob    = "phone_name_map.json"
	PhoneIndexBlob = "instay_archives_phone_index.json"
	BlocklistBlob  = "sent_template_blocklist.json"
	LatestBlob     = "instay_output_latest.csv"
)

// ErrBlobNotFound is returned by a Bucket for a missing blob.
var ErrBlobNotFound = errors.New("blob not found")

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name         string
	LastModified time.Time
	Size         int64
}

// Bucket is the blob storage the archive lives in.
type Bucket interface {
	List(ctx context.Context, container string) ([]BlobInfo, error)
	Stat(ctx context.Context, container, name string) (BlobInfo, error)
	Download(ctx context.Context, container, name string) ([]byte, error)
	Upload(ctx context.Context, container, name string, data []byte, contentType string) error
	Delete(ctx context.Context, container, name string) error
}

// BlobStore keeps timestamped exports in the archive container and
// published JSON documents in the maps container.
type BlobStore struct {
	bucket   Bucket
	archives string
	maps     string
	log      zerolog.Logger
}

// NewBlobStore creates a store over bucket.
func NewBlobStore(bucket Bucket, archiveContainer, mapsContainer string, log zerolog.Logger) *BlobStore {
	return &BlobStore{
		bucket:   bucket,
		archives: archiveContainer,
		maps:     mapsContainer,
		log:      log.With().Str("component", "BlobStore").Logger(),
	}
}

// ArchiveContainer returns the archive container name.
func (s *BlobStore) ArchiveContainer() string { return s.archives }

// newest returns the most recently modified CSV blob.
func (s *BlobStore) newest(ctx context.Context) (BlobInfo, error) {
	blobs, err := s.bucket.List(ctx, s.archives)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("failed to list archives: %w", err)
	}
	var best BlobInfo
	for _, b := range blobs {
		if !strings.HasSuffix(strings.ToLower(b.Name), ".csv") {
			continue
		}
		if best.Name == "" || b.LastModified.After(best.LastModified) {
			best = b
		}
	}
	if best.Name == "" {
		return BlobInfo{}, ErrNoSnapshot
	}
	return best, nil
}

func blobVersion(b BlobInfo) string {
	return b.Name + "@" + b.LastModified.UTC().Format(time.RFC3339Nano)
}

// Version identifies the newest archived export.
func (s *BlobStore) Version(ctx context.Context) (string, error) {
	b, err := s.newest(ctx)
	if err != nil {
		return "", err
	}
	return blobVersion(b), nil
}

// Latest downloads the newest archived export.
func (s *BlobStore) Latest(ctx context.Context) (*Snapshot, error) {
	b, err := s.newest(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.bucket.Download(ctx, s.archives, b.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", b.Name, err)
	}
	return Parse(b.Name, blobVersion(b), data)
}

// PointerVersion reports the modification marker of the fixed "latest"
// export blob. It returns ErrNoSnapshot when the blob is absent.
func (s *BlobStore) PointerVersion(ctx context.Context) (string, error) {
	b, err := s.bucket.Stat(ctx, s.archives, LatestBlob)
	if errors.Is(err, ErrBlobNotFound) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", LatestBlob, err)
	}
	return blobVersion(b), nil
}

// DownloadPointer fetches the fixed "latest" export blob.
func (s *BlobStore) DownloadPointer(ctx context.Context) ([]byte, error) {
	data, err := s.bucket.Download(ctx, s.archives, LatestBlob)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", LatestBlob, err)
	}
	return data, nil
}

// ArchiveName returns the blob name for an export uploaded at now.
func ArchiveName(now time.Time) string {
	now = now.UTC()
	stamp := strings.NewReplacer(":", "", ".", "").Replace(now.Format("2006-01-02T15:04:05.000Z"))
	return "instay_output-" + now.Format("2006-01-02") + "-" + stamp + ".csv"
}

// UploadArchive stores data as a new timestamped export and returns its
// name. Every upload is kept.
func (s *BlobStore) UploadArchive(ctx context.Context, data []byte, now time.Time) (string, error) {
	name := ArchiveName(now)
	if err := s.bucket.Upload(ctx, s.archives, name, data, "text/csv"); err != nil {
		return "", fmt.Errorf("failed to upload archive %s: %w", name, err)
	}
	s.log.Info().Str("container", s.archives).Str("blob", name).Msg("Uploaded export archive")
	return name, nil
}

// Archives downloads every CSV in the archive container. Blobs that
// cannot be fetched or parsed are logged and skipped.
func (s *BlobStore) Archives(ctx context.Context) ([]phoneindex.Archive, error) {
	blobs, err := s.bucket.List(ctx, s.archives)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })

	out := make([]phoneindex.Archive, 0, len(blobs))
	for _, b := range blobs {
		if !strings.HasSuffix(strings.ToLower(b.Name), ".csv") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		data, err := s.bucket.Download(ctx, s.archives, b.Name)
		if err != nil {
			s.log.Warn().Err(err).Str("blob", b.Name).Msg("Skipping archive that failed to download")
			continue
		}
		snap, err := Parse(b.Name, blobVersion(b), data)
		if err != nil {
			s.log.Warn().Err(err).Str("blob", b.Name).Msg("Skipping unreadable archive")
			continue
		}
		out = append(out, phoneindex.Archive{Name: b.Name, Rows: records.ExtractAll(snap.Rows)})
	}
	return out, nil
}

// PublishJSON writes v as an indented JSON blob in the maps container.
func (s *BlobStore) PublishJSON(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := s.bucket.Upload(ctx, s.maps, name, data, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}
	s.log.Debug().Str("container", s.maps).Str("blob", name).Int("bytes", len(data)).Msg("Published document")
	return nil
}

// RemoteNameMap fetches the published name map. A missing blob yields an
// empty map.
func (s *BlobStore) RemoteNameMap(ctx context.Context) (map[string]models.NameMapEntry, error) {
	data, err := s.bucket.Download(ctx, s.maps, NameMapBlob)
	if errors.Is(err, ErrBlobNotFound) {
		return map[string]models.NameMapEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", NameMapBlob, err)
	}
	out := make(map[string]models.NameMapEntry)
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", NameMapBlob, err)
	}
	return out, nil
}
