// Package freelist manages the chain of reclaimed pages threaded through
// the page store. Reuse order is LIFO: the most recently freed page is the
// next one acquired, which needs no bookkeeping beyond the header's head
// pointer.
package freelist

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	pagestore "github.com/cipollino-studio/verter/core/page_store"
)

// PageIO is the page access the free list needs. Both the raw page store
// and the buffer pool cache satisfy it.
type PageIO interface {
	ReadPage(pagestore.PageID) ([]byte, error)
	WritePage(pagestore.PageID, []byte) error
	AppendPage([]byte) (pagestore.PageID, error)
	PageSize() int
	PageCount() uint64
	FreeListHead() pagestore.PageID
	SetFreeListHead(pagestore.PageID) error
}

// Stats is a snapshot of the free list's allocation counters.
type Stats struct {
	Acquired uint64 // pages handed out, from the list or by append
	Released uint64 // pages pushed back onto the list
	Appended uint64 // pages created by extending the file
}

// FreeList acquires and reclaims pages one at a time.
type FreeList struct {
	io  PageIO
	log *zap.Logger

	acquired atomic.Uint64
	released atomic.Uint64
	appended atomic.Uint64
}

// New creates a FreeList over io. A nil logger defaults to a no-op.
func New(io PageIO, logger *zap.Logger) *FreeList {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FreeList{io: io, log: logger}
}

// Acquire returns a page for the caller to own: the head of the free list
// if one exists, otherwise a fresh page appended at end-of-file. The
// returned page is formatted as a free page; the caller overwrites it.
func (fl *FreeList) Acquire() (pagestore.PageID, error) {
	head := fl.io.FreeListHead()
	if head == pagestore.NilPageID {
		buf := make([]byte, fl.io.PageSize())
		pagestore.InitFreePage(buf, pagestore.NilPageID)
		id, err := fl.io.AppendPage(buf)
		if err != nil {
			return pagestore.NilPageID, err
		}
		fl.acquired.Add(1)
		fl.appended.Add(1)
		fl.log.Debug("acquired fresh page", zap.Uint64("page", uint64(id)))
		return id, nil
	}

	if uint64(head) >= fl.io.PageCount() {
		return pagestore.NilPageID, fmt.Errorf("%w: free-list head %d outside allocated range [0, %d)",
			pagestore.ErrCorruptChain, head, fl.io.PageCount())
	}
	buf, err := fl.io.ReadPage(head)
	if err != nil {
		return pagestore.NilPageID, err
	}
	if pagestore.PageKind(buf) != pagestore.PageKindFree {
		return pagestore.NilPageID, fmt.Errorf("%w: free-list head %d is not a free page",
			pagestore.ErrCorruptChain, head)
	}
	next := pagestore.WrapContPage(buf).Next()
	if err := fl.io.SetFreeListHead(next); err != nil {
		return pagestore.NilPageID, err
	}
	fl.acquired.Add(1)
	fl.log.Debug("reused free page",
		zap.Uint64("page", uint64(head)),
		zap.Uint64("new_head", uint64(next)))
	return head, nil
}

// Release pushes one page onto the front of the free list. The page is
// rewritten as a free page with its payload zeroed.
func (fl *FreeList) Release(id pagestore.PageID) error {
	buf := make([]byte, fl.io.PageSize())
	pagestore.InitFreePage(buf, fl.io.FreeListHead())
	if err := fl.io.WritePage(id, buf); err != nil {
		return err
	}
	if err := fl.io.SetFreeListHead(id); err != nil {
		return err
	}
	fl.released.Add(1)
	fl.log.Debug("released page", zap.Uint64("page", uint64(id)))
	return nil
}

// ReleaseChain releases every page in ids. Order only affects which page
// is reused first.
func (fl *FreeList) ReleaseChain(ids []pagestore.PageID) error {
	for _, id := range ids {
		if err := fl.Release(id); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the allocation counters.
func (fl *FreeList) Stats() Stats {
	return Stats{
		Acquired: fl.acquired.Load(),
		Released: fl.released.Load(),
		Appended: fl.appended.Load(),
	}
}
