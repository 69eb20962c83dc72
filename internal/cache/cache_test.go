package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(10, 1<<20)
	data, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestAddAndGet(t *testing.T) {
	c := New(10, 1<<20)
	c.Add("k1", "", []byte("payload"))

	data, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(7), c.Cost())
}

func TestEntryCountEviction(t *testing.T) {
	c := New(2, 1<<20)
	c.Add("k1", "", []byte("a"))
	c.Add("k2", "", []byte("b"))
	c.Add("k3", "", []byte("c"))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("k1")
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestCostEviction(t *testing.T) {
	c := New(10, 10)
	c.Add("k1", "", []byte("aaaa"))
	c.Add("k2", "", []byte("bbbb"))
	c.Add("k3", "", []byte("cccc"))

	assert.LessOrEqual(t, c.Cost(), int64(10))
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New(2, 1<<20)
	c.Add("k1", "", []byte("a"))
	c.Add("k2", "", []byte("b"))

	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Add("k3", "", []byte("c"))
	_, ok = c.Get("k1")
	assert.True(t, ok, "recently read entry must survive eviction")
	_, ok = c.Get("k2")
	assert.False(t, ok)
}

func TestOversizedEntryIsDropped(t *testing.T) {
	c := New(10, 4)
	c.Add("big", "", []byte("too large to cache"))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Cost())
}

func TestStaleEntryIsPurged(t *testing.T) {
	c := New(10, 1<<20)

	backing := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(backing, []byte("on disk"), 0o644))

	c.Add("k1", backing, []byte("on disk"))
	_, ok := c.Get("k1")
	require.True(t, ok)

	// Delete the backing file out from under the cache.
	require.NoError(t, os.Remove(backing))

	data, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Nil(t, data)
	assert.Equal(t, 0, c.Len(), "stale entry must be purged on access")
	assert.Equal(t, int64(0), c.Cost())
}

func TestInvalidateAll(t *testing.T) {
	c := New(10, 1<<20)
	c.Add("k1", "", []byte("a"))
	c.Add("k2", "", []byte("b"))

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Cost())
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestUpdateExistingKeyAdjustsCost(t *testing.T) {
	c := New(10, 1<<20)
	c.Add("k1", "", []byte("aa"))
	c.Add("k1", "", []byte("aaaa"))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(4), c.Cost())
}
