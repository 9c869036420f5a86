package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	storageengine "github.com/cipollino-studio/verter/core/storage_engine"
	"github.com/cipollino-studio/verter/pkg/logger"
	"github.com/cipollino-studio/verter/pkg/telemetry"
)

// Exercises a verter file with a mixed write/read/resize/delete workload
// and exposes engine and workload metrics on a prometheus endpoint.
func main() {
	path := flag.String("file", "bench.verter", "path of the verter file")
	ops := flag.Int("ops", 10000, "number of operations to run")
	chains := flag.Int("chains", 64, "number of live chains to cycle through")
	maxSize := flag.Int("max-size", 64*1024, "maximum payload size in bytes")
	pageSize := flag.Uint("page-size", 4096, "page size in bytes")
	cacheSize := flag.Int("cache", storageengine.DefaultCacheSize, "page cache capacity in pages, negative disables")
	metricsPort := flag.Int("metrics-port", 9471, "prometheus /metrics port")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	zlogger, err := logger.New(logger.Config{Level: *level, Format: "console"})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlogger.Sync()

	tel, shutdown, err := telemetry.New(telemetry.Config{
		Enabled:        true,
		ServiceName:    "verter_bench",
		PrometheusPort: *metricsPort,
	})
	if err != nil {
		zlogger.Fatal("telemetry setup failed", zap.Error(err))
	}
	defer shutdown(context.Background())

	opCounter, err := tel.Meter.Int64Counter("verter_bench_ops",
		metric.WithDescription("Benchmark operations executed."))
	if err != nil {
		zlogger.Fatal("meter setup failed", zap.Error(err))
	}
	opLatency, err := tel.Meter.Float64Histogram("verter_bench_op_seconds",
		metric.WithDescription("Benchmark operation latency."),
		metric.WithUnit("s"))
	if err != nil {
		zlogger.Fatal("meter setup failed", zap.Error(err))
	}

	opts := storageengine.DefaultOptions()
	opts.PageSize = uint32(*pageSize)
	opts.CacheSize = *cacheSize
	opts.Logger = zlogger

	file, err := storageengine.Open(*path, opts)
	if err != nil {
		zlogger.Fatal("open failed", zap.Error(err))
	}
	defer file.Close()
	prometheus.MustRegister(storageengine.NewCollector(file))

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	live := make([]storageengine.Pointer, 0, *chains)

	record := func(op string, start time.Time, err error) {
		attrs := metric.WithAttributes(
			attribute.String("op", op),
			attribute.Bool("ok", err == nil))
		opCounter.Add(ctx, 1, attrs)
		opLatency.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil {
			zlogger.Error("operation failed", zap.String("op", op), zap.Error(err))
		}
	}

	zlogger.Info("starting benchmark",
		zap.Int("ops", *ops),
		zap.Int("chains", *chains),
		zap.Int("max_size", *maxSize))
	begin := time.Now()

	for i := 0; i < *ops; i++ {
		switch {
		case len(live) < *chains:
			start := time.Now()
			ptr, err := file.Alloc()
			record("alloc", start, err)
			if err == nil {
				live = append(live, ptr)
			}
		case rng.Intn(10) == 0:
			// Occasionally retire a chain so the free list sees traffic.
			idx := rng.Intn(len(live))
			start := time.Now()
			err := file.Delete(live[idx])
			record("delete", start, err)
			live = append(live[:idx], live[idx+1:]...)
		case rng.Intn(2) == 0:
			idx := rng.Intn(len(live))
			payload := make([]byte, rng.Intn(*maxSize))
			rng.Read(payload)
			start := time.Now()
			err := file.Write(live[idx], payload)
			record("write", start, err)
		default:
			idx := rng.Intn(len(live))
			start := time.Now()
			_, err := file.Read(live[idx])
			record("read", start, err)
		}
	}

	elapsed := time.Since(begin)
	stats := file.Stats()
	zlogger.Info("benchmark complete",
		zap.Duration("elapsed", elapsed),
		zap.String("throughput", fmt.Sprintf("%.0f ops/s", float64(*ops)/elapsed.Seconds())),
		zap.Uint64("file_pages", stats.Pages),
		zap.Uint64("page_reads", stats.Store.PageReads),
		zap.Uint64("page_writes", stats.Store.PageWrites),
		zap.Uint64("cache_hits", stats.Cache.Hits),
		zap.Uint64("cache_misses", stats.Cache.Misses),
		zap.Uint64("pages_reused", stats.FreeList.Acquired-stats.FreeList.Appended))

	zlogger.Info("metrics endpoint still serving, ctrl-c to exit",
		zap.Int("port", *metricsPort))
	select {}
}
