// Package storageengine exposes the public handle over one verter file:
// open/close lifecycle, chain operations, and the root accessor. One
// exclusive logical handle per open file; operations are serialized
// internally but the engine does not coordinate between handles or
// processes.
package storageengine

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bufferpool "github.com/cipollino-studio/verter/core/buffer_pool"
	chainengine "github.com/cipollino-studio/verter/core/chain_engine"
	freelist "github.com/cipollino-studio/verter/core/free_list"
	pagestore "github.com/cipollino-studio/verter/core/page_store"
)

// Pointer identifies a chain by its head page index. Pointers are opaque
// to callers and may be reused after a Delete.
type Pointer = pagestore.PageID

// NilPointer is never a valid chain pointer.
const NilPointer = pagestore.NilPageID

// Re-exported error taxonomy. Every fallible operation returns one of
// these, wrapped with context.
var (
	ErrIO               = pagestore.ErrIO
	ErrCorruptHeader    = pagestore.ErrCorruptHeader
	ErrPageSizeMismatch = pagestore.ErrPageSizeMismatch
	ErrInvalidPageSize  = pagestore.ErrInvalidPageSize
	ErrInvalidPointer   = pagestore.ErrInvalidPointer
	ErrCorruptChain     = pagestore.ErrCorruptChain

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("file handle is closed")
)

// pageIO is what the engine layers run against: either the raw store or
// the buffer pool cache in front of it.
type pageIO interface {
	freelist.PageIO
	chainengine.PageIO
	Flush() error
}

// Stats aggregates counters from every layer of one handle.
type Stats struct {
	Store    pagestore.Stats
	FreeList freelist.Stats
	Engine   chainengine.Stats
	Cache    bufferpool.Stats
	Pages    uint64 // pages currently allocated in the file
}

// File is an open verter file.
type File struct {
	path   string
	opts   Options
	store  *pagestore.PageStore
	cache  *bufferpool.Cache // nil when the cache is disabled
	io     pageIO
	free   *freelist.FreeList
	engine *chainengine.Engine
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the verter file at path, creating and initializing it if it
// does not exist. A freshly created file already contains an empty root
// chain.
func Open(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With(
		zap.String("path", path),
		zap.String("handle", uuid.NewString()))

	store, err := pagestore.Open(path, opts.PageSize, log)
	if err != nil {
		return nil, err
	}

	var io pageIO = store
	var cache *bufferpool.Cache
	if opts.CacheSize > 0 {
		cache = bufferpool.New(store, opts.CacheSize, log)
		io = cache
	}
	free := freelist.New(io, log)
	engine := chainengine.New(io, free, log)

	f := &File{
		path:   path,
		opts:   opts,
		store:  store,
		cache:  cache,
		io:     io,
		free:   free,
		engine: engine,
		log:    log,
	}

	if store.Created() {
		if err := f.initRoot(); err != nil {
			store.Close()
			_ = os.Remove(path)
			return nil, err
		}
	} else {
		root := store.RootHead()
		if root == NilPointer || uint64(root) >= store.PageCount() {
			store.Close()
			return nil, fmt.Errorf("%w: root chain head %d is unusable", ErrCorruptHeader, root)
		}
	}

	log.Info("opened file",
		zap.Uint64("pages", store.PageCount()),
		zap.Bool("created", store.Created()))
	return f, nil
}

// initRoot allocates the root chain of a freshly created file. Its head
// page is permanently reserved; there is no way to delete it.
func (f *File) initRoot() error {
	ptr, err := f.engine.Alloc()
	if err != nil {
		return err
	}
	return f.store.SetRootHead(ptr)
}

// Alloc creates a new empty chain and returns its pointer.
func (f *File) Alloc() (Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return NilPointer, ErrClosed
	}
	return f.engine.Alloc()
}

// Read returns the chain's full payload.
func (f *File) Read(ptr Pointer) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.engine.Read(ptr)
}

// Write replaces the chain's payload with data, growing or shrinking the
// chain in place.
func (f *File) Write(ptr Pointer, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.engine.Write(ptr, data)
}

// Delete releases every page of the chain back to the free list. The
// pointer is invalid afterwards; a later Alloc may reissue its page index.
// The file never shrinks. The root chain cannot be deleted.
func (f *File) Delete(ptr Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if ptr == f.store.RootHead() {
		return fmt.Errorf("%w: the root chain cannot be deleted", ErrInvalidPointer)
	}
	return f.engine.Delete(ptr)
}

// ReadRoot returns the root chain's payload.
func (f *File) ReadRoot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	data, err := f.engine.Read(f.store.RootHead())
	return data, f.mapRootErr(err)
}

// WriteRoot replaces the root chain's payload with data.
func (f *File) WriteRoot(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.mapRootErr(f.engine.Write(f.store.RootHead(), data))
}

// mapRootErr reclassifies pointer failures on the root chain: the caller
// supplied no pointer, so a bad root head means the file itself is bad.
func (f *File) mapRootErr(err error) error {
	if errors.Is(err, ErrInvalidPointer) {
		return fmt.Errorf("%w: root head %d: %v", ErrCorruptChain, f.store.RootHead(), err)
	}
	return err
}

// Flush forces all completed writes to stable storage.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.io.Flush()
}

// Close flushes and closes the handle. Further operations fail with
// ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	err := f.store.Close()
	f.log.Info("closed file")
	return err
}

// Path returns the file's path.
func (f *File) Path() string { return f.path }

// PageSize returns the file's page size in bytes.
func (f *File) PageSize() int { return f.store.PageSize() }

// Stats returns a snapshot of all layer counters for this handle.
func (f *File) Stats() Stats {
	s := Stats{
		Store:    f.store.Stats(),
		FreeList: f.free.Stats(),
		Engine:   f.engine.Stats(),
		Pages:    f.store.PageCount(),
	}
	if f.cache != nil {
		s.Cache = f.cache.Stats()
	}
	return s
}
