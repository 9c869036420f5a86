package pagestore

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPageSize = 64

// setupStore creates a fresh page store in a temporary directory.
func setupStore(t *testing.T) (*PageStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.verter")
	logger := zap.NewNop()
	ps, err := Open(path, testPageSize, logger)
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return ps, path
}

func TestOpenCreatesFile(t *testing.T) {
	ps, path := setupStore(t)
	require.True(t, ps.Created())
	require.Equal(t, uint64(0), ps.PageCount())
	require.Equal(t, NilPageID, ps.FreeListHead())
	require.Equal(t, NilPageID, ps.RootHead())

	// A new file holds exactly the header.
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(FileHeaderSize), fi.Size())
}

func TestHeaderSurvivesReopen(t *testing.T) {
	ps, path := setupStore(t)

	buf := make([]byte, testPageSize)
	id, err := ps.AppendPage(buf)
	require.NoError(t, err)
	require.NoError(t, ps.SetFreeListHead(PageID(12345)))
	require.NoError(t, ps.SetRootHead(id))
	require.NoError(t, ps.Close())

	ps2, err := Open(path, testPageSize, zap.NewNop())
	require.NoError(t, err)
	defer ps2.Close()
	require.False(t, ps2.Created())
	require.Equal(t, uint64(1), ps2.PageCount())
	require.Equal(t, PageID(12345), ps2.FreeListHead())
	require.Equal(t, id, ps2.RootHead())
}

func TestAppendReadWriteRoundTrip(t *testing.T) {
	ps, path := setupStore(t)

	buf := make([]byte, testPageSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	id, err := ps.AppendPage(buf)
	require.NoError(t, err)
	require.Equal(t, PageID(0), id)
	require.Equal(t, uint64(1), ps.PageCount())

	got, err := ps.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, buf, got)

	buf[0] = 0xFF
	require.NoError(t, ps.WritePage(id, buf))
	got, err = ps.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, buf, got)

	// page_count * page_size + header_size must equal the file length.
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(FileHeaderSize+testPageSize), fi.Size())
}

func TestReadPageOutOfRange(t *testing.T) {
	ps, _ := setupStore(t)
	_, err := ps.ReadPage(PageID(0))
	require.ErrorIs(t, err, ErrIO)
}

func TestWholePageWritesOnly(t *testing.T) {
	ps, _ := setupStore(t)
	_, err := ps.AppendPage(make([]byte, testPageSize-1))
	require.ErrorIs(t, err, ErrIO)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	ps, path := setupStore(t)
	require.NoError(t, ps.Close())

	// Stomp the magic field.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(raw[0:], 0xDEADBEEF)
	require.NoError(t, os.WriteFile(path, raw, 0666))

	_, err = Open(path, testPageSize, zap.NewNop())
	require.ErrorIs(t, err, ErrCorruptHeader)
}

func TestOpenRejectsPageSizeMismatch(t *testing.T) {
	ps, path := setupStore(t)
	require.NoError(t, ps.Close())

	_, err := Open(path, testPageSize*2, zap.NewNop())
	require.ErrorIs(t, err, ErrPageSizeMismatch)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	ps, path := setupStore(t)
	_, err := ps.AppendPage(make([]byte, testPageSize))
	require.NoError(t, err)
	require.NoError(t, ps.Close())

	// Chop off half of the only page; the header now disagrees with the
	// file length.
	require.NoError(t, os.Truncate(path, FileHeaderSize+testPageSize/2))

	_, err = Open(path, testPageSize, zap.NewNop())
	require.ErrorIs(t, err, ErrCorruptHeader)
}

func TestOpenRejectsTinyPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.verter")
	_, err := Open(path, MinPageSize-1, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestStatsCount(t *testing.T) {
	ps, _ := setupStore(t)
	id, err := ps.AppendPage(make([]byte, testPageSize))
	require.NoError(t, err)
	_, err = ps.ReadPage(id)
	require.NoError(t, err)
	require.NoError(t, ps.WritePage(id, make([]byte, testPageSize)))

	s := ps.Stats()
	require.Equal(t, uint64(1), s.PageAppends)
	require.Equal(t, uint64(1), s.PageReads)
	require.Equal(t, uint64(1), s.PageWrites)
	require.NotZero(t, s.HeaderWrites)
}
