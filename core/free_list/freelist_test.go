package freelist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pagestore "github.com/cipollino-studio/verter/core/page_store"
)

const testPageSize = 64

// setupFreeList creates a free list over a fresh page store.
func setupFreeList(t *testing.T) (*FreeList, *pagestore.PageStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "freelist.verter")
	ps, err := pagestore.Open(path, testPageSize, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return New(ps, zap.NewNop()), ps
}

func TestAcquireExtendsEmptyFile(t *testing.T) {
	fl, ps := setupFreeList(t)

	// With nothing on the free list every acquire appends a page.
	id1, err := fl.Acquire()
	require.NoError(t, err)
	id2, err := fl.Acquire()
	require.NoError(t, err)
	require.Equal(t, pagestore.PageID(0), id1)
	require.Equal(t, pagestore.PageID(1), id2)
	require.Equal(t, uint64(2), ps.PageCount())

	s := fl.Stats()
	require.Equal(t, uint64(2), s.Acquired)
	require.Equal(t, uint64(2), s.Appended)
}

func TestReleaseThenAcquireIsLIFO(t *testing.T) {
	fl, ps := setupFreeList(t)

	var ids []pagestore.PageID
	for i := 0; i < 3; i++ {
		id, err := fl.Acquire()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, fl.Release(ids[0]))
	require.NoError(t, fl.Release(ids[1]))
	require.NoError(t, fl.Release(ids[2]))

	// Most recently freed page comes back first.
	got, err := fl.Acquire()
	require.NoError(t, err)
	require.Equal(t, ids[2], got)
	got, err = fl.Acquire()
	require.NoError(t, err)
	require.Equal(t, ids[1], got)
	got, err = fl.Acquire()
	require.NoError(t, err)
	require.Equal(t, ids[0], got)

	// The list is drained; no appends happened during the reuse.
	require.Equal(t, pagestore.NilPageID, ps.FreeListHead())
	require.Equal(t, uint64(3), ps.PageCount())
}

func TestReleaseChain(t *testing.T) {
	fl, ps := setupFreeList(t)

	var ids []pagestore.PageID
	for i := 0; i < 4; i++ {
		id, err := fl.Acquire()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, fl.ReleaseChain(ids))
	require.Equal(t, uint64(4), fl.Stats().Released)

	// Every page comes back before the file grows again.
	seen := map[pagestore.PageID]bool{}
	for i := 0; i < 4; i++ {
		id, err := fl.Acquire()
		require.NoError(t, err)
		seen[id] = true
	}
	require.Len(t, seen, 4)
	require.Equal(t, uint64(4), ps.PageCount())
}

func TestAcquireRejectsCorruptHead(t *testing.T) {
	fl, ps := setupFreeList(t)

	id, err := fl.Acquire()
	require.NoError(t, err)

	// Point the free list at a page that is not free.
	buf := make([]byte, testPageSize)
	pagestore.InitHeadPage(buf)
	require.NoError(t, ps.WritePage(id, buf))
	require.NoError(t, ps.SetFreeListHead(id))

	_, err = fl.Acquire()
	require.ErrorIs(t, err, pagestore.ErrCorruptChain)
}

func TestAcquireRejectsOutOfRangeHead(t *testing.T) {
	fl, ps := setupFreeList(t)

	_, err := fl.Acquire()
	require.NoError(t, err)

	// Point the free list past the end of the file.
	require.NoError(t, ps.SetFreeListHead(pagestore.PageID(1<<30)))

	_, err = fl.Acquire()
	require.ErrorIs(t, err, pagestore.ErrCorruptChain)
}

func TestReleaseScrubsPage(t *testing.T) {
	fl, ps := setupFreeList(t)

	id, err := fl.Acquire()
	require.NoError(t, err)
	buf := make([]byte, testPageSize)
	cont := pagestore.InitContPage(buf)
	copy(cont.Payload(), "sensitive bytes")
	require.NoError(t, ps.WritePage(id, buf))

	require.NoError(t, fl.Release(id))

	got, err := ps.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, pagestore.PageKindFree, pagestore.PageKind(got))
	for _, b := range pagestore.WrapContPage(got).Payload() {
		require.Zero(t, b)
	}
}
