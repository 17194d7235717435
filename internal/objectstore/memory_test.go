package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "documents/a/original.txt", []byte("hello"), "text/plain"))

	obj, err := m.Get(ctx, "documents/a/original.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Data)
	assert.Equal(t, "text/plain", obj.ContentType)
}

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()

	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, key := range []string{"documents/a/1", "documents/a/2", "documents/b/1", "other/x"} {
		require.NoError(t, m.Put(ctx, key, []byte("x"), ""))
	}

	keys, err := m.List(ctx, "documents/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"documents/a/1", "documents/a/2"}, keys)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "a", []byte("1"), ""))
	require.NoError(t, m.Put(ctx, "b", []byte("2"), ""))

	require.NoError(t, m.Delete(ctx, []string{"a", "missing"}))
	assert.Equal(t, 1, m.Len())

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}
