package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayIsolation(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()
	require.NoError(t, ps.Put([]byte("k/1"), []byte("a")))
	require.NoError(t, ps.Put([]byte("k/2"), []byte("b")))

	ov := NewOverlay(ps)
	require.NoError(t, ov.Put([]byte("k/3"), []byte("c")))
	require.NoError(t, ov.Delete([]byte("k/1")))
	require.NoError(t, ov.Put([]byte("k/2"), []byte("B")))
	assert.Equal(t, 3, ov.Len())

	_, found, err := ov.Get([]byte("k/1"))
	require.NoError(t, err)
	assert.False(t, found)
	v, found, err := ov.Get([]byte("k/2"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("B"), v)

	kvs, err := ov.GetWithPrefix([]byte("k/"))
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, [2][]byte{[]byte("k/2"), []byte("B")}, kvs[0])
	assert.Equal(t, [2][]byte{[]byte("k/3"), []byte("c")}, kvs[1])

	// nothing reached the parent yet
	v, _, err = ps.Get([]byte("k/2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)

	ov.Discard()
	assert.Equal(t, 0, ov.Len())
	v, found, err = ov.Get([]byte("k/1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("a"), v)
}

func TestOverlayCommitIntoTxn(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	txn, err := ps.Begin()
	require.NoError(t, err)

	good := NewOverlay(txn)
	require.NoError(t, good.Put([]byte("ok"), []byte("1")))
	require.NoError(t, good.Commit())

	bad := NewOverlay(txn)
	require.NoError(t, bad.Put([]byte("failed"), []byte("1")))
	bad.Discard()

	require.NoError(t, txn.Commit())

	_, found, err := ps.Get([]byte("ok"))
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = ps.Get([]byte("failed"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOverlayNested(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	defer ps.Close()

	outer := NewOverlay(ps)
	inner := NewOverlay(outer)
	require.NoError(t, inner.Put([]byte("x"), []byte("1")))
	require.NoError(t, inner.Commit())
	v, found, err := outer.Get([]byte("x"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), v)
	_, found, err = ps.Get([]byte("x"))
	require.NoError(t, err)
	assert.False(t, found)
}
