// Package pagestore is the only component that touches raw file I/O. It
// reads and writes whole fixed-size pages at offsets derived from a page
// index, and owns the file header record at offset 0.
package pagestore

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Stats is a point-in-time snapshot of the store's I/O counters.
type Stats struct {
	PageReads    uint64
	PageWrites   uint64
	PageAppends  uint64
	HeaderWrites uint64
	BytesRead    uint64
	BytesWritten uint64
}

// PageStore manages the pages of one open file. All page I/O is whole-page:
// partial-page writes are never issued.
type PageStore struct {
	path     string
	file     *os.File
	pageSize int
	header   FileHeader
	created  bool
	log      *zap.Logger
	mu       sync.Mutex

	pageReads    atomic.Uint64
	pageWrites   atomic.Uint64
	pageAppends  atomic.Uint64
	headerWrites atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// Open opens the page store at path, creating and initializing the file if
// it does not exist. For an existing file the stored header must pass
// validation against the configured page size.
func Open(path string, pageSize uint32, logger *zap.Logger) (*PageStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize < MinPageSize {
		return nil, fmt.Errorf("%w: %d (minimum %d)", ErrInvalidPageSize, pageSize, MinPageSize)
	}

	_, statErr := os.Stat(path)
	create := os.IsNotExist(statErr)
	if statErr != nil && !create {
		return nil, fmt.Errorf("%w: stating %s: %v", ErrIO, path, statErr)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}

	ps := &PageStore{
		path:     path,
		file:     file,
		pageSize: int(pageSize),
		created:  create,
		log:      logger,
	}

	if create {
		ps.header = newFileHeader(pageSize)
		if err := ps.writeHeader(); err != nil {
			file.Close()
			_ = os.Remove(path)
			return nil, err
		}
		logger.Info("created page store",
			zap.String("path", path),
			zap.Uint32("page_size", pageSize))
		return ps, nil
	}

	if err := ps.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	if err := ps.header.validate(pageSize); err != nil {
		file.Close()
		return nil, err
	}

	// The file must be exactly as long as the header claims. A length that
	// disagrees with the page count means a torn allocation or truncation.
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stating %s: %v", ErrIO, path, err)
	}
	want := int64(FileHeaderSize) + int64(ps.header.PageCount)*int64(ps.pageSize)
	if fi.Size() != want {
		file.Close()
		return nil, fmt.Errorf("%w: file is %d bytes, header implies %d", ErrCorruptHeader, fi.Size(), want)
	}

	logger.Debug("opened page store",
		zap.String("path", path),
		zap.Uint64("page_count", ps.header.PageCount))
	return ps, nil
}

// Created reports whether Open initialized a brand new file.
func (ps *PageStore) Created() bool { return ps.created }

// PageSize returns the configured page size in bytes.
func (ps *PageStore) PageSize() int { return ps.pageSize }

// PageCount returns the number of pages currently allocated in the file.
func (ps *PageStore) PageCount() uint64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.header.PageCount
}

// FreeListHead returns the head of the free-page chain.
func (ps *PageStore) FreeListHead() PageID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.header.FreeListHead
}

// SetFreeListHead updates and persists the free-list head pointer.
func (ps *PageStore) SetFreeListHead(id PageID) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.header.FreeListHead = id
	return ps.writeHeader()
}

// RootHead returns the head page of the root chain.
func (ps *PageStore) RootHead() PageID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.header.RootHead
}

// SetRootHead updates and persists the root chain pointer.
func (ps *PageStore) SetRootHead(id PageID) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.header.RootHead = id
	return ps.writeHeader()
}

// ReadPage reads page id into a fresh buffer of exactly one page.
func (ps *PageStore) ReadPage(id PageID) ([]byte, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if uint64(id) >= ps.header.PageCount {
		return nil, fmt.Errorf("%w: page %d beyond allocated count %d", ErrIO, id, ps.header.PageCount)
	}
	buf := make([]byte, ps.pageSize)
	n, err := ps.file.ReadAt(buf, ps.pageOffset(id))
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: short read for page %d, got %d of %d bytes", ErrIO, id, n, ps.pageSize)
		}
		return nil, fmt.Errorf("%w: reading page %d: %v", ErrIO, id, err)
	}
	ps.pageReads.Add(1)
	ps.bytesRead.Add(uint64(n))
	return buf, nil
}

// WritePage writes a whole page at id. The buffer must be exactly one page.
func (ps *PageStore) WritePage(id PageID, buf []byte) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(buf) != ps.pageSize {
		return fmt.Errorf("%w: page buffer is %d bytes, want %d", ErrIO, len(buf), ps.pageSize)
	}
	if uint64(id) >= ps.header.PageCount {
		return fmt.Errorf("%w: page %d beyond allocated count %d", ErrIO, id, ps.header.PageCount)
	}
	if _, err := ps.file.WriteAt(buf, ps.pageOffset(id)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, id, err)
	}
	ps.pageWrites.Add(1)
	ps.bytesWritten.Add(uint64(len(buf)))
	return nil
}

// AppendPage extends the file by one page holding buf and returns the new
// page's index. The header's page count is persisted before returning so
// the count and file length never disagree after a completed call.
func (ps *PageStore) AppendPage(buf []byte) (PageID, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(buf) != ps.pageSize {
		return NilPageID, fmt.Errorf("%w: page buffer is %d bytes, want %d", ErrIO, len(buf), ps.pageSize)
	}
	id := PageID(ps.header.PageCount)
	if _, err := ps.file.WriteAt(buf, ps.pageOffset(id)); err != nil {
		return NilPageID, fmt.Errorf("%w: appending page %d: %v", ErrIO, id, err)
	}
	ps.header.PageCount++
	if err := ps.writeHeader(); err != nil {
		ps.header.PageCount--
		return NilPageID, err
	}
	ps.pageAppends.Add(1)
	ps.bytesWritten.Add(uint64(len(buf)))
	ps.log.Debug("appended page", zap.Uint64("page", uint64(id)))
	return id, nil
}

// Flush forces all buffered writes to stable storage.
func (ps *PageStore) Flush() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := ps.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, ps.path, err)
	}
	return nil
}

// Close syncs and closes the underlying file handle.
func (ps *PageStore) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.file == nil {
		return nil
	}
	syncErr := ps.file.Sync()
	closeErr := ps.file.Close()
	ps.file = nil
	if syncErr != nil {
		return fmt.Errorf("%w: syncing on close: %v", ErrIO, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, ps.path, closeErr)
	}
	return nil
}

// Stats returns a snapshot of the store's I/O counters.
func (ps *PageStore) Stats() Stats {
	return Stats{
		PageReads:    ps.pageReads.Load(),
		PageWrites:   ps.pageWrites.Load(),
		PageAppends:  ps.pageAppends.Load(),
		HeaderWrites: ps.headerWrites.Load(),
		BytesRead:    ps.bytesRead.Load(),
		BytesWritten: ps.bytesWritten.Load(),
	}
}

func (ps *PageStore) pageOffset(id PageID) int64 {
	return int64(FileHeaderSize) + int64(id)*int64(ps.pageSize)
}

// writeHeader persists the in-memory header to offset 0. Callers must hold
// ps.mu.
func (ps *PageStore) writeHeader() error {
	data, err := ps.header.encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := ps.file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	ps.headerWrites.Add(1)
	ps.bytesWritten.Add(FileHeaderSize)
	return nil
}

// readHeader loads the header record from offset 0.
func (ps *PageStore) readHeader() error {
	data := make([]byte, FileHeaderSize)
	n, err := ps.file.ReadAt(data, 0)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: file too short for header (%d bytes)", ErrCorruptHeader, n)
		}
		return fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	ps.bytesRead.Add(FileHeaderSize)
	return ps.header.decode(data)
}
