package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlob struct {
	data        []byte
	modified    time.Time
	contentType string
}

type memBucket struct {
	mu    sync.Mutex
	blobs map[string]map[string]memBlob
	clock time.Time
	fail  error
}

func newMemBucket() *memBucket {
	return &memBucket{
		blobs: make(map[string]map[string]memBlob),
		clock: time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (b *memBucket) put(container, name, data string, modified time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blobs[container] == nil {
		b.blobs[container] = make(map[string]memBlob)
	}
	b.blobs[container][name] = memBlob{data: []byte(data), modified: modified}
}

func (b *memBucket) List(_ context.Context, container string) ([]BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	var out []BlobInfo
	for name, blob := range b.blobs[container] {
		out = append(out, BlobInfo{Name: name, LastModified: blob.modified, Size: int64(len(blob.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *memBucket) Stat(_ context.Context, container, name string) (BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blob, ok := b.blobs[container][name]
	if !ok {
		return BlobInfo{}, ErrBlobNotFound
	}
	return BlobInfo{Name: name, LastModified: blob.modified, Size: int64(len(blob.data))}, nil
}

func (b *memBucket) Download(_ context.Context, container, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	blob, ok := b.blobs[container][name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return blob.data, nil
}

func (b *memBucket) Upload(_ context.Context, container, name string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blobs[container] == nil {
		b.blobs[container] = make(map[string]memBlob)
	}
	b.clock = b.clock.Add(time.Minute)
	b.blobs[container][name] = memBlob{data: data, modified: b.clock, contentType: contentType}
	return nil
}

func (b *memBucket) Delete(_ context.Context, container, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs[container], name)
	return nil
}

const exportCSV = "First Name,Last Name,Ph.,Checkout Date\nAna,Ruiz,+34 600 111 222,2024-03-01\n"

func TestFileSource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "instay_output.csv")
	src := NewFileSource(path)

	_, err := src.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = src.Version(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, src.Replace([]byte(exportCSV)))
	snap, err := src.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "instay_output.csv", snap.Name)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "+34 600 111 222", snap.Rows[0]["Ph."])

	v, err := src.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, v)
}

func TestBlobStore_LatestPicksNewest(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	t0 := time.Date(2024, time.March, 2, 9, 0, 0, 0, time.UTC)
	bucket.put("archives", "instay_output-2024-03-02-a.csv", "First Name,Ph.\nOld,1\n", t0)
	bucket.put("archives", "instay_output-2024-03-03-b.csv", "First Name,Ph.\nNew,2\n", t0.Add(24*time.Hour))
	bucket.put("archives", "notes.txt", "ignore", t0.Add(48*time.Hour))

	store := NewBlobStore(bucket, "archives", "maps", zerolog.Nop())
	snap, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "instay_output-2024-03-03-b.csv", snap.Name)
	assert.Equal(t, "New", snap.Rows[0]["First Name"])

	archives, err := store.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "Old", archives[0].Rows[0].FirstName)
}

func TestBlobStore_EmptyContainer(t *testing.T) {
	store := NewBlobStore(newMemBucket(), "archives", "maps", zerolog.Nop())
	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = store.PointerVersion(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestBlobStore_UploadAndPublish(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	store := NewBlobStore(bucket, "archives", "maps", zerolog.Nop())

	now := time.Date(2024, time.March, 5, 10, 15, 30, 123000000, time.UTC)
	name, err := store.UploadArchive(ctx, []byte(exportCSV), now)
	require.NoError(t, err)
	assert.Equal(t, "instay_output-2024-03-05-2024-03-05T101530123Z.csv", name)
	assert.Equal(t, "text/csv", bucket.blobs["archives"][name].contentType)

	require.NoError(t, store.PublishJSON(ctx, NameMapBlob, map[string]any{"34600111222": "Ana Ruiz"}))
	remote, err := store.RemoteNameMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", remote["34600111222"].Name)
	assert.True(t, remote["34600111222"].Legacy)
}

func TestBlobStore_RemoteNameMapMissing(t *testing.T) {
	store := NewBlobStore(newMemBucket(), "archives", "maps", zerolog.Nop())
	remote, err := store.RemoteNameMap(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	local := NewFileSource(filepath.Join(t.TempDir(), "instay_output.csv"))
	require.NoError(t, local.Replace([]byte("First Name,Ph.\nLocal,1\n")))

	bucket := newMemBucket()
	remote := NewBlobStore(bucket, "archives", "maps", zerolog.Nop())
	chain := NewFallback(zerolog.Nop(), remote, local)

	snap, err := chain.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Local", snap.Rows[0]["First Name"])

	bucket.put("archives", "instay_output-2024-03-05.csv", "First Name,Ph.\nRemote,1\n", time.Now())
	snap, err = chain.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Remote", snap.Rows[0]["First Name"])

	bucket.fail = errors.New("network down")
	snap, err = chain.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Local", snap.Rows[0]["First Name"])

	_, err = NewFallback(zerolog.Nop()).Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLocalArchives(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("instay_output-2024-03-01.csv", "First Name,Ph.\nAna,+34600111222\n")
	write("Guests_March.csv", "Guest,Phone\nLuis,447700900123\n")
	write("budget.csv", "Item,Cost\nTowels,3\n")
	write("instay_output.txt", "not a csv")

	archives := LocalArchives([]string{dir, dir, filepath.Join(dir, "missing")}, zerolog.Nop())
	require.Len(t, archives, 2)
	assert.Equal(t, "Guests_March.csv", archives[0].Name)
	assert.Equal(t, "Luis", archives[0].Rows[0].FirstName)
	assert.Equal(t, "instay_output-2024-03-01.csv", archives[1].Name)
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "20240305", DateKey("instay_output-2024-03-05-2024-03-05T101530123Z.csv"))
	assert.Equal(t, "20240305", DateKey("export_20240305.csv"))
	assert.Equal(t, "", DateKey("instay_output_latest.csv"))
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	t0 := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	bucket.put("archives", "instay_output-2024-03-05-a.csv", "x", t0)
	bucket.put("archives", "instay_output-2024-03-05-b.csv", "x", t0.Add(time.Hour))
	bucket.put("archives", "export_20240305.csv", "x", t0.Add(-time.Hour))
	bucket.put("archives", "instay_output-2024-03-06-a.csv", "x", t0)
	bucket.put("archives", "instay_output_latest.csv", "x", t0)

	store := NewBlobStore(bucket, "archives", "maps", zerolog.Nop())
	res, err := store.Prune(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dates)
	require.Len(t, res.Removals, 2)
	for _, r := range res.Removals {
		assert.Equal(t, "instay_output-2024-03-05-b.csv", r.Keep)
	}
	assert.Empty(t, res.Deleted)
	assert.Len(t, bucket.blobs["archives"], 5)

	res, err = store.Prune(ctx, false)
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 2)
	assert.Len(t, bucket.blobs["archives"], 3)
	assert.Contains(t, bucket.blobs["archives"], "instay_output_latest.csv")
}

func TestWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instay_output.csv")
	changed := make(chan struct{}, 4)
	w := NewWatcher(path, func(context.Context) { changed <- struct{}{} }, zerolog.Nop())
	w.settle = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, NewFileSource(path).Replace([]byte(exportCSV)))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
