package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the contract shared by every backend: absent reads,
// put/get round trips, overwrites, and idempotent deletes.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	key := []byte("some-key\x01\x00\x00\x00\x00\x00\x00\x00")

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should not contain the key")

	require.NoError(t, s.Put(ctx, key, []byte("v1")))
	val, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, s.Put(ctx, key, []byte("v2")))
	val, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), val, "put should overwrite")

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "deleted key should be absent")

	// Deleting an absent key succeeds.
	require.NoError(t, s.Delete(ctx, key))
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("abc")))

	val, ok, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	val[0] = 'X'

	again, _, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again, "mutating a returned value must not affect the store")
}

func TestSQLite_Contract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvchaos.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kvchaos.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("persistent")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	val, ok, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("persistent"), val)
}

func TestFailFirst_FailsThenPassesThrough(t *testing.T) {
	ctx := context.Background()
	s := NewFailFirst(NewMemory(), 3)

	// First three calls fail regardless of operation.
	require.ErrorIs(t, s.Put(ctx, []byte("k"), []byte("v")), ErrInjected)
	_, _, err := s.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, ErrInjected)
	require.ErrorIs(t, s.Delete(ctx, []byte("k")), ErrInjected)

	// Fourth call succeeds.
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
	val, ok, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	assert.Equal(t, 5, s.Calls())
}

func TestFailFirst_ZeroIsTransparent(t *testing.T) {
	ctx := context.Background()
	s := NewFailFirst(NewMemory(), 0)
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
	assert.Equal(t, 1, s.Calls())
}

func TestEncodeKey_RoundTrip(t *testing.T) {
	key := []byte{0x00, 0xff, 'a', 'b', 0x10}
	decoded, err := DecodeKey(EncodeKey(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}
