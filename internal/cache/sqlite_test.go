package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key("default", "graph TD; A-->B;")
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key("default", "graph TD; A-->B;"))
	assert.NotEqual(t, k, Key("dark", "graph TD; A-->B;"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestSQLiteStore_GetPut(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "k", "<svg>1</svg>"))
	svg, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "<svg>1</svg>", svg)

	require.NoError(t, store.Put(ctx, "k", "<svg>2</svg>"))
	svg, _, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "<svg>2</svg>", svg)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "renders.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, Key("default", "pie"), "<svg/>"))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	svg, found, err := store.Get(ctx, Key("default", "pie"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "<svg/>", svg)
}
