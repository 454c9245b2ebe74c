package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_GetSet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)

	value, err := store.Get(ctx, "sources")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, store.Set(ctx, "sources", []byte(`[1]`)))
	require.NoError(t, store.Set(ctx, "sources", []byte(`[1,2]`)))

	value, err = store.Get(ctx, "sources")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(value))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err = reopened.Get(ctx, "sources")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(value))
}
