package namemap

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-messaging/internal/models"
	"hotel-messaging/internal/storage"
)

func newMap(t *testing.T, dir string) *Map {
	t.Helper()
	kv, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	m, err := Load(context.Background(), kv, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestUpsertIfRicher_CreatesThenAugments(t *testing.T) {
	ctx := context.Background()
	m := newMap(t, t.TempDir())

	changed, err := m.UpsertIfRicher(ctx, "34600111222", "Ana Ruiz", "")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.UpsertIfRicher(ctx, "34600111222", "Someone Else", "")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = m.UpsertIfRicher(ctx, "34600111222", "", "2024-03-01")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.UpsertIfRicher(ctx, "34600111222", "Ana Ruiz", "2024-04-01")
	require.NoError(t, err)
	assert.False(t, changed)

	e, ok := m.Get("34600111222")
	require.True(t, ok)
	assert.Equal(t, "Ana Ruiz", e.Name)
	assert.Equal(t, "2024-03-01", e.CheckoutDate)
}

func TestUpsertIfRicher_NeverStoresEmptyNameOrKey(t *testing.T) {
	ctx := context.Background()
	m := newMap(t, t.TempDir())

	changed, err := m.UpsertIfRicher(ctx, "", "Ana", "")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = m.UpsertIfRicher(ctx, "15550100", "  ", "2024-03-01")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, m.Len())
}

func TestUpsertIfRicher_IsDurable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newMap(t, dir)
	_, err := m.UpsertIfRicher(ctx, "15550100", "Marta", "01.03.2024")
	require.NoError(t, err)

	reloaded := newMap(t, dir)
	e, ok := reloaded.Get("15550100")
	require.True(t, ok)
	assert.Equal(t, models.NameMapEntry{Name: "Marta", CheckoutDate: "01.03.2024"}, e)
}

func TestLegacyShapeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"15550100": "Bob Stone", "34600111222": {"name": "Ana", "checkoutDate": "2024-03-01"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.NamespaceNameMap+".json"), []byte(legacy), 0644))

	m := newMap(t, dir)
	bob, ok := m.Get("15550100")
	require.True(t, ok)
	assert.True(t, bob.Legacy)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, legacy, string(out))
}

func TestUpsertIfRicher_AugmentsLegacyEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.NamespaceNameMap+".json"), []byte(`{"15550100":"Bob"}`), 0644))
	m := newMap(t, dir)

	changed, err := m.UpsertIfRicher(ctx, "15550100", "", "2024-05-02")
	require.NoError(t, err)
	assert.True(t, changed)

	e, _ := m.Get("15550100")
	assert.Equal(t, models.NameMapEntry{Name: "Bob", CheckoutDate: "2024-05-02"}, e)
}

func TestMergeRemote_LocalWins(t *testing.T) {
	ctx := context.Background()
	m := newMap(t, t.TempDir())
	_, err := m.UpsertIfRicher(ctx, "15550100", "Local Name", "")
	require.NoError(t, err)

	n, err := m.MergeRemote(ctx, map[string]models.NameMapEntry{
		"15550100":    {Name: "Remote Name"},
		"34600111222": {Name: "Ana", Legacy: true},
		"":            {Name: "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, _ := m.Get("15550100")
	assert.Equal(t, "Local Name", e.Name)
	e, _ = m.Get("34600111222")
	assert.Equal(t, "Ana", e.Name)
}

func TestSyncFromRecords_OverwritesAndNormalizesLegacy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.NamespaceNameMap+".json"),
		[]byte(`{"15550100":"Bob","34600111222":{"name":"Old","checkoutDate":"2024-01-01"}}`), 0644))
	m := newMap(t, dir)

	res, err := m.SyncFromRecords(ctx, []models.FieldTuple{
		{FirstName: "Ana", LastName: "Ruiz", Phone: "+34600111222", CheckoutDate: "2024-03-01"},
		{FirstName: "", Phone: "+44 7000"},
	})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Updated: 1, Total: 2}, res)

	ana, _ := m.Get("34600111222")
	assert.Equal(t, models.NameMapEntry{Name: "Ana Ruiz", CheckoutDate: "2024-03-01"}, ana)
	bob, _ := m.Get("15550100")
	assert.False(t, bob.Legacy)
	assert.Equal(t, "Bob", bob.Name)

	reloaded := newMap(t, dir)
	bob, _ = reloaded.Get("15550100")
	assert.False(t, bob.Legacy)
}

func TestUpsertRecords_FirstRowWinsWithinBatch(t *testing.T) {
	ctx := context.Background()
	m := newMap(t, t.TempDir())
	n, err := m.UpsertRecords(ctx, []models.FieldTuple{
		{FirstName: "Ana", LastName: "Ruiz", Phone: "+34600111222"},
		{FirstName: "Ana", LastName: "R", Phone: "34600111222", CheckoutDate: "2024-03-01"},
		{FirstName: "Nobody"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e, _ := m.Get("34600111222")
	assert.Equal(t, models.NameMapEntry{Name: "Ana Ruiz", CheckoutDate: "2024-03-01"}, e)
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newMap(t, dir)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := models.PhoneKey([]string{"1001", "1002", "1003", "1004"}[i%4])
			_, err := m.UpsertIfRicher(ctx, key, "Guest", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, newMap(t, dir).Len())
}
