package storageengine

import "go.uber.org/zap"

const (
	// DefaultPageSize is the page size used when Options leaves it zero.
	// It is fixed for the life of a file and must match on reopen.
	DefaultPageSize uint32 = 4096

	// DefaultCacheSize is the default page cache capacity, in pages.
	DefaultCacheSize = 128
)

// Options configures an open file handle. The zero value is usable and
// picks the defaults above.
type Options struct {
	// PageSize is the page size in bytes. 0 means DefaultPageSize.
	PageSize uint32 `yaml:"page_size"`

	// CacheSize is the page cache capacity in pages. 0 means
	// DefaultCacheSize; a negative value disables the cache entirely.
	CacheSize int `yaml:"cache_size"`

	// Logger receives the engine's structured logs. Nil means no logging.
	Logger *zap.Logger `yaml:"-"`
}

// DefaultOptions returns the options Open uses for a zero-value Options.
func DefaultOptions() Options {
	return Options{
		PageSize:  DefaultPageSize,
		CacheSize: DefaultCacheSize,
	}
}

// withDefaults fills in unset fields.
func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
