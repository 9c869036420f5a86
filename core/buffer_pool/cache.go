// Package bufferpool provides a write-through LRU cache of page buffers
// sitting between the chain engine and the page store. Chain walks re-read
// the same pages constantly; the cache serves those re-reads from memory.
//
// Writes always go to the store before the cached copy is updated, so the
// cache never holds data the file does not, and Flush degenerates to the
// store's fsync.
package bufferpool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	pagestore "github.com/cipollino-studio/verter/core/page_store"
)

// Stats is a snapshot of the cache's hit counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// frame is one cached page.
type frame struct {
	id   pagestore.PageID
	data []byte
}

// Cache fronts a PageStore with an LRU page cache. It exposes the same
// page and header operations as the store so the free list and chain
// engine can run against either.
type Cache struct {
	store    *pagestore.PageStore
	capacity int
	log      *zap.Logger

	mu    sync.Mutex
	table map[pagestore.PageID]*list.Element
	lru   *list.List // front = most recently used, elements hold *frame

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache over store holding at most capacity pages.
func New(store *pagestore.PageStore, capacity int, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:    store,
		capacity: capacity,
		log:      logger,
		table:    make(map[pagestore.PageID]*list.Element, capacity),
		lru:      list.New(),
	}
}

// ReadPage returns a copy of page id, from the cache when present.
func (c *Cache) ReadPage(id pagestore.PageID) ([]byte, error) {
	c.mu.Lock()
	if elem, ok := c.table[id]; ok {
		c.lru.MoveToFront(elem)
		data := elem.Value.(*frame).data
		out := make([]byte, len(data))
		copy(out, data)
		c.mu.Unlock()
		c.hits.Add(1)
		return out, nil
	}
	c.mu.Unlock()

	buf, err := c.store.ReadPage(id)
	if err != nil {
		return nil, err
	}
	c.misses.Add(1)
	c.insert(id, buf)
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// WritePage writes the page through to the store and refreshes the cached
// copy on success.
func (c *Cache) WritePage(id pagestore.PageID, buf []byte) error {
	if err := c.store.WritePage(id, buf); err != nil {
		return err
	}
	c.insert(id, buf)
	return nil
}

// AppendPage extends the file through the store and caches the new page.
func (c *Cache) AppendPage(buf []byte) (pagestore.PageID, error) {
	id, err := c.store.AppendPage(buf)
	if err != nil {
		return pagestore.NilPageID, err
	}
	c.insert(id, buf)
	return id, nil
}

// insert stores a private copy of buf for id, evicting the least recently
// used page when over capacity.
func (c *Cache) insert(id pagestore.PageID, buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.table[id]; ok {
		elem.Value.(*frame).data = data
		c.lru.MoveToFront(elem)
		return
	}
	c.table[id] = c.lru.PushFront(&frame{id: id, data: data})
	for c.lru.Len() > c.capacity {
		victim := c.lru.Back()
		if victim == nil {
			break
		}
		vf := victim.Value.(*frame)
		c.lru.Remove(victim)
		delete(c.table, vf.id)
		c.evictions.Add(1)
		c.log.Debug("evicted page", zap.Uint64("page", uint64(vf.id)))
	}
}

// PageSize returns the store's page size.
func (c *Cache) PageSize() int { return c.store.PageSize() }

// PageCount returns the store's allocated page count.
func (c *Cache) PageCount() uint64 { return c.store.PageCount() }

// FreeListHead returns the header's free-list head pointer.
func (c *Cache) FreeListHead() pagestore.PageID { return c.store.FreeListHead() }

// SetFreeListHead persists the header's free-list head pointer.
func (c *Cache) SetFreeListHead(id pagestore.PageID) error { return c.store.SetFreeListHead(id) }

// Flush forces store writes to stable storage. The cache itself holds
// nothing dirty.
func (c *Cache) Flush() error { return c.store.Flush() }

// Stats returns a snapshot of the hit counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
