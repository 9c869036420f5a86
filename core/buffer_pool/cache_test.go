package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pagestore "github.com/cipollino-studio/verter/core/page_store"
)

const testPageSize = 64

func setupCache(t *testing.T, capacity int) (*Cache, *pagestore.PageStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.verter")
	ps, err := pagestore.Open(path, testPageSize, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return New(ps, capacity, zap.NewNop()), ps
}

func pageFilledWith(b byte) []byte {
	buf := make([]byte, testPageSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestReadServedFromCache(t *testing.T) {
	c, ps := setupCache(t, 4)

	id, err := c.AppendPage(pageFilledWith(1))
	require.NoError(t, err)

	// The append primed the cache, so reads never touch the store.
	for i := 0; i < 3; i++ {
		got, err := c.ReadPage(id)
		require.NoError(t, err)
		require.Equal(t, pageFilledWith(1), got)
	}
	require.Equal(t, uint64(3), c.Stats().Hits)
	require.Zero(t, c.Stats().Misses)
	require.Zero(t, ps.Stats().PageReads)
}

func TestWriteGoesThroughToStore(t *testing.T) {
	c, ps := setupCache(t, 4)

	id, err := c.AppendPage(pageFilledWith(1))
	require.NoError(t, err)
	require.NoError(t, c.WritePage(id, pageFilledWith(2)))

	// The store sees the write immediately, not at flush time.
	got, err := ps.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, pageFilledWith(2), got)
}

func TestEvictionKeepsCapacity(t *testing.T) {
	c, ps := setupCache(t, 2)

	var ids []pagestore.PageID
	for i := byte(0); i < 3; i++ {
		id, err := c.AppendPage(pageFilledWith(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Equal(t, uint64(1), c.Stats().Evictions)

	// The oldest page was evicted and must be re-read from the store.
	got, err := c.ReadPage(ids[0])
	require.NoError(t, err)
	require.Equal(t, pageFilledWith(0), got)
	require.Equal(t, uint64(1), c.Stats().Misses)
	require.Equal(t, uint64(1), ps.Stats().PageReads)
}

func TestReadReturnsPrivateCopy(t *testing.T) {
	c, _ := setupCache(t, 4)

	id, err := c.AppendPage(pageFilledWith(1))
	require.NoError(t, err)

	got, err := c.ReadPage(id)
	require.NoError(t, err)
	got[0] = 0xFF // caller scribbles on its copy

	again, err := c.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, pageFilledWith(1), again)
}

func TestHeaderOpsDelegate(t *testing.T) {
	c, ps := setupCache(t, 4)

	require.Equal(t, testPageSize, c.PageSize())
	require.NoError(t, c.SetFreeListHead(pagestore.PageID(5)))
	require.Equal(t, pagestore.PageID(5), ps.FreeListHead())
	require.Equal(t, pagestore.PageID(5), c.FreeListHead())
	require.Equal(t, ps.PageCount(), c.PageCount())
}
