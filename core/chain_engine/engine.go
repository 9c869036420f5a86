// Package chainengine implements the chain algorithms: a logical blob is
// an ordered sequence of linked pages, and alloc/read/write/delete mutate
// one chain in O(chain length) without touching the rest of the file.
//
// The engine never materializes an in-memory linked structure mirroring
// the disk; every operation re-reads and re-links page by page, with the
// page index as the sole identity.
package chainengine

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	freelist "github.com/cipollino-studio/verter/core/free_list"
	pagestore "github.com/cipollino-studio/verter/core/page_store"
)

// PageIO is the page access the engine needs. Both the raw page store and
// the buffer pool cache satisfy it.
type PageIO interface {
	ReadPage(pagestore.PageID) ([]byte, error)
	WritePage(pagestore.PageID, []byte) error
	PageSize() int
	PageCount() uint64
}

// Stats is a snapshot of the engine's operation counters.
type Stats struct {
	Allocs       uint64
	Reads        uint64
	Writes       uint64
	Deletes      uint64
	BytesRead    uint64 // payload bytes returned by Read
	BytesWritten uint64 // payload bytes accepted by Write
}

// Engine mutates page chains through a PageIO, acquiring and reclaiming
// pages through the free list.
type Engine struct {
	io   PageIO
	free *freelist.FreeList
	log  *zap.Logger

	allocs       atomic.Uint64
	reads        atomic.Uint64
	writes       atomic.Uint64
	deletes      atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// New creates an Engine over io and free. A nil logger defaults to a no-op.
func New(io PageIO, free *freelist.FreeList, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{io: io, free: free, log: logger}
}

// Alloc creates a new empty chain and returns the pointer to its head page.
func (e *Engine) Alloc() (pagestore.PageID, error) {
	id, err := e.free.Acquire()
	if err != nil {
		return pagestore.NilPageID, err
	}
	buf := make([]byte, e.io.PageSize())
	pagestore.InitHeadPage(buf)
	if err := e.io.WritePage(id, buf); err != nil {
		return pagestore.NilPageID, err
	}
	e.allocs.Add(1)
	e.log.Debug("allocated chain", zap.Uint64("head", uint64(id)))
	return id, nil
}

// Read returns the chain's payload: the head page's total length worth of
// bytes concatenated from the head and its continuation pages.
func (e *Engine) Read(ptr pagestore.PageID) ([]byte, error) {
	headBuf, err := e.readHead(ptr)
	if err != nil {
		return nil, err
	}
	head := pagestore.WrapHeadPage(headBuf)
	total := head.TotalLength()
	want, err := e.chainLength(ptr, total)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, total)
	remaining := total
	n := min(remaining, uint64(len(head.Payload())))
	data = append(data, head.Payload()[:n]...)
	remaining -= n

	next := head.Next()
	seen := map[pagestore.PageID]struct{}{ptr: {}}
	for remaining > 0 {
		contBuf, err := e.readCont(ptr, next, seen, want)
		if err != nil {
			return nil, err
		}
		cont := pagestore.WrapContPage(contBuf)
		n := min(remaining, uint64(len(cont.Payload())))
		data = append(data, cont.Payload()[:n]...)
		remaining -= n
		next = cont.Next()
	}

	e.reads.Add(1)
	e.bytesRead.Add(total)
	return data, nil
}

// Write replaces the chain's payload with data, reusing the pages the
// chain already holds, acquiring extra pages when it grows and reclaiming
// the excess suffix when it shrinks. Pages that stay in the chain keep
// their index; only the tail changes.
func (e *Engine) Write(ptr pagestore.PageID, data []byte) error {
	headBuf, err := e.readHead(ptr)
	if err != nil {
		return err
	}
	oldIDs, err := e.collectChain(ptr, headBuf)
	if err != nil {
		return err
	}

	pageSize := e.io.PageSize()
	need := pagestore.ChainPages(uint64(len(data)), pageSize)

	ids := oldIDs
	var excess []pagestore.PageID
	if uint64(len(ids)) > need {
		excess = ids[need:]
		ids = ids[:need]
	}
	for uint64(len(ids)) < need {
		id, err := e.free.Acquire()
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	offset := 0
	for i, id := range ids {
		next := pagestore.NilPageID
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		buf := make([]byte, pageSize)
		var payload []byte
		if i == 0 {
			h := pagestore.InitHeadPage(buf)
			h.SetTotalLength(uint64(len(data)))
			h.SetNext(next)
			payload = h.Payload()
		} else {
			c := pagestore.InitContPage(buf)
			c.SetNext(next)
			payload = c.Payload()
		}
		n := copy(payload, data[offset:])
		offset += n
		if err := e.io.WritePage(id, buf); err != nil {
			return err
		}
	}

	// The new chain is fully linked; the trimmed suffix can now go back to
	// the free list.
	if err := e.free.ReleaseChain(excess); err != nil {
		return err
	}

	e.writes.Add(1)
	e.bytesWritten.Add(uint64(len(data)))
	e.log.Debug("wrote chain",
		zap.Uint64("head", uint64(ptr)),
		zap.Int("bytes", len(data)),
		zap.Int("pages", len(ids)),
		zap.Int("released", len(excess)))
	return nil
}

// Delete walks the chain collecting every page, then releases them all.
// The head page itself goes back to the free list; the pointer is invalid
// afterwards until a future Alloc reissues the page.
func (e *Engine) Delete(ptr pagestore.PageID) error {
	headBuf, err := e.readHead(ptr)
	if err != nil {
		return err
	}
	ids, err := e.collectChain(ptr, headBuf)
	if err != nil {
		return err
	}
	if err := e.free.ReleaseChain(ids); err != nil {
		return err
	}
	e.deletes.Add(1)
	e.log.Debug("deleted chain",
		zap.Uint64("head", uint64(ptr)),
		zap.Int("pages", len(ids)))
	return nil
}

// Stats returns a snapshot of the operation counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Allocs:       e.allocs.Load(),
		Reads:        e.reads.Load(),
		Writes:       e.writes.Load(),
		Deletes:      e.deletes.Load(),
		BytesRead:    e.bytesRead.Load(),
		BytesWritten: e.bytesWritten.Load(),
	}
}

// readHead resolves ptr to a live head page. A pointer outside the
// allocated range, or one landing on a free or continuation page, is
// invalid rather than corrupt: the file itself may be fine.
func (e *Engine) readHead(ptr pagestore.PageID) ([]byte, error) {
	if ptr == pagestore.NilPageID || uint64(ptr) >= e.io.PageCount() {
		return nil, fmt.Errorf("%w: page %d outside allocated range [0, %d)",
			pagestore.ErrInvalidPointer, ptr, e.io.PageCount())
	}
	buf, err := e.io.ReadPage(ptr)
	if err != nil {
		return nil, err
	}
	switch pagestore.PageKind(buf) {
	case pagestore.PageKindHead:
		return buf, nil
	case pagestore.PageKindFree:
		return nil, fmt.Errorf("%w: page %d has been deleted", pagestore.ErrInvalidPointer, ptr)
	default:
		return nil, fmt.Errorf("%w: page %d is not a chain head", pagestore.ErrInvalidPointer, ptr)
	}
}

// chainLength returns the exact page count the chain must have for its
// total length, erroring out if that count cannot fit in the file.
func (e *Engine) chainLength(ptr pagestore.PageID, total uint64) (uint64, error) {
	want := pagestore.ChainPages(total, e.io.PageSize())
	if want > e.io.PageCount() {
		return 0, fmt.Errorf("%w: chain at %d claims %d bytes (%d pages) but the file has %d pages",
			pagestore.ErrCorruptChain, ptr, total, want, e.io.PageCount())
	}
	return want, nil
}

// readCont validates and reads one continuation page during a chain walk.
// seen holds every page already consumed: revisiting one means the chain
// aliases a page. The walk is additionally bounded by want, the page count
// implied by the chain's total length.
func (e *Engine) readCont(ptr, next pagestore.PageID, seen map[pagestore.PageID]struct{}, want uint64) ([]byte, error) {
	if next == pagestore.NilPageID {
		return nil, fmt.Errorf("%w: chain at %d ends after %d of %d pages",
			pagestore.ErrCorruptChain, ptr, len(seen), want)
	}
	if uint64(next) >= e.io.PageCount() {
		return nil, fmt.Errorf("%w: chain at %d links to page %d outside allocated range [0, %d)",
			pagestore.ErrCorruptChain, ptr, next, e.io.PageCount())
	}
	if _, dup := seen[next]; dup {
		return nil, fmt.Errorf("%w: chain at %d revisits page %d, cycle detected",
			pagestore.ErrCorruptChain, ptr, next)
	}
	if uint64(len(seen)) >= want {
		return nil, fmt.Errorf("%w: chain at %d exceeds %d pages",
			pagestore.ErrCorruptChain, ptr, want)
	}
	buf, err := e.io.ReadPage(next)
	if err != nil {
		return nil, err
	}
	if pagestore.PageKind(buf) != pagestore.PageKindCont {
		return nil, fmt.Errorf("%w: chain at %d links to page %d which is not a continuation page",
			pagestore.ErrCorruptChain, ptr, next)
	}
	seen[next] = struct{}{}
	return buf, nil
}

// collectChain walks the whole chain starting at the already validated
// head buffer and returns every page index in order. The chain must have
// exactly the page count its total length implies.
func (e *Engine) collectChain(ptr pagestore.PageID, headBuf []byte) ([]pagestore.PageID, error) {
	head := pagestore.WrapHeadPage(headBuf)
	want, err := e.chainLength(ptr, head.TotalLength())
	if err != nil {
		return nil, err
	}

	ids := make([]pagestore.PageID, 1, want)
	ids[0] = ptr
	next := head.Next()
	seen := map[pagestore.PageID]struct{}{ptr: {}}
	for uint64(len(ids)) < want {
		contBuf, err := e.readCont(ptr, next, seen, want)
		if err != nil {
			return nil, err
		}
		ids = append(ids, next)
		next = pagestore.WrapContPage(contBuf).Next()
	}
	if next != pagestore.NilPageID {
		return nil, fmt.Errorf("%w: chain at %d continues past its %d pages",
			pagestore.ErrCorruptChain, ptr, want)
	}
	return ids, nil
}
