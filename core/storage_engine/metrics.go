package storageengine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a handle's counters as prometheus metrics. Register
// one per open file; the path label keeps handles apart.
type Collector struct {
	file *File

	pageReads    *prometheus.Desc
	pageWrites   *prometheus.Desc
	pageAppends  *prometheus.Desc
	headerWrites *prometheus.Desc
	bytesRead    *prometheus.Desc
	bytesWritten *prometheus.Desc

	pagesAcquired *prometheus.Desc
	pagesReleased *prometheus.Desc

	chainAllocs  *prometheus.Desc
	chainReads   *prometheus.Desc
	chainWrites  *prometheus.Desc
	chainDeletes *prometheus.Desc

	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc

	filePages *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a prometheus collector over f's counters.
func NewCollector(f *File) *Collector {
	labels := prometheus.Labels{"path": f.Path()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("verter_"+name, help, nil, labels)
	}
	return &Collector{
		file:           f,
		pageReads:      desc("page_reads_total", "Whole pages read from disk."),
		pageWrites:     desc("page_writes_total", "Whole pages written to disk."),
		pageAppends:    desc("page_appends_total", "Pages appended at end-of-file."),
		headerWrites:   desc("header_writes_total", "File header rewrites."),
		bytesRead:      desc("disk_bytes_read_total", "Bytes read from disk."),
		bytesWritten:   desc("disk_bytes_written_total", "Bytes written to disk."),
		pagesAcquired:  desc("pages_acquired_total", "Pages handed out by the free list."),
		pagesReleased:  desc("pages_released_total", "Pages reclaimed onto the free list."),
		chainAllocs:    desc("chain_allocs_total", "Chains allocated."),
		chainReads:     desc("chain_reads_total", "Chain read operations."),
		chainWrites:    desc("chain_writes_total", "Chain write operations."),
		chainDeletes:   desc("chain_deletes_total", "Chains deleted."),
		cacheHits:      desc("cache_hits_total", "Page cache hits."),
		cacheMisses:    desc("cache_misses_total", "Page cache misses."),
		cacheEvictions: desc("cache_evictions_total", "Page cache evictions."),
		filePages:      desc("file_pages", "Pages currently allocated in the file."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.file.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.pageReads, s.Store.PageReads)
	counter(c.pageWrites, s.Store.PageWrites)
	counter(c.pageAppends, s.Store.PageAppends)
	counter(c.headerWrites, s.Store.HeaderWrites)
	counter(c.bytesRead, s.Store.BytesRead)
	counter(c.bytesWritten, s.Store.BytesWritten)
	counter(c.pagesAcquired, s.FreeList.Acquired)
	counter(c.pagesReleased, s.FreeList.Released)
	counter(c.chainAllocs, s.Engine.Allocs)
	counter(c.chainReads, s.Engine.Reads)
	counter(c.chainWrites, s.Engine.Writes)
	counter(c.chainDeletes, s.Engine.Deletes)
	counter(c.cacheHits, s.Cache.Hits)
	counter(c.cacheMisses, s.Cache.Misses)
	counter(c.cacheEvictions, s.Cache.Evictions)
	ch <- prometheus.MustNewConstMetric(c.filePages, prometheus.GaugeValue, float64(s.Pages))
}
