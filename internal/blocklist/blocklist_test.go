package blocklist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-messaging/internal/models"
	"hotel-messaging/internal/storage"
)

func TestBlocklist_GrowsAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "engine.db")
	kv, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)

	b, err := Load(ctx, kv, zerolog.Nop())
	require.NoError(t, err)
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	added, err := b.Add(ctx, "34600111222", now)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.Add(ctx, "34600111222", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = b.Add(ctx, "", now)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, kv.Close())
	kv, err = storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer kv.Close()

	reloaded, err := Load(ctx, kv, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("34600111222"))
	assert.False(t, reloaded.Contains("15550100"))
	assert.Equal(t, []models.PhoneKey{"34600111222"}, reloaded.All())
}
