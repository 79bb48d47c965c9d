package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		file.Close()
		db.Close()
	})
	return map[string]KV{"file": file, "sqlite": db}
}

func TestKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, NamespaceNameMap, "34600111222")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put(ctx, NamespaceNameMap, "34600111222", []byte(`"Ana Ruiz"`)))
			require.NoError(t, kv.PutMany(ctx, NamespaceNameMap, map[string][]byte{
				"15550100": []byte(`{"name":"Bob","checkoutDate":"2024-03-01"}`),
			}))

			v, err := kv.Get(ctx, NamespaceNameMap, "34600111222")
			require.NoError(t, err)
			assert.JSONEq(t, `"Ana Ruiz"`, string(v))

			all, err := kv.All(ctx, NamespaceNameMap)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			other, err := kv.All(ctx, NamespaceBlocklist)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, NamespaceBlocklist, "15550100", []byte(`true`)))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	v, err := s2.Get(ctx, NamespaceBlocklist, "15550100")
	require.NoError(t, err)
	assert.Equal(t, "true", string(v))
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, NamespaceNameMap+".json"), []byte("{not json"), 0644))

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	all, err := s.All(ctx, NamespaceNameMap)
	require.NoError(t, err)
	assert.Empty(t, all)

	matches, _ := filepath.Glob(filepath.Join(dir, NamespaceNameMap+".json.corrupt-*"))
	assert.Len(t, matches, 1)
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), NamespaceNameMap, "1", []byte("{")))
}
