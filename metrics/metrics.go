// Package metrics holds the Prometheus collectors exported by schedbox.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schedbox"

var (
	RecordReads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_reads_total",
		Help:      "Number of raw records fetched from the record store.",
	})
	ChunkCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_cache_hits_total",
		Help:      "Number of record reads served by an already decompressed chunk.",
	})
	ChunkCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_cache_misses_total",
		Help:      "Number of record reads that had to decompress a chunk.",
	})
	IngestedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_entries_total",
		Help:      "Number of trace entries produced by the ingester.",
	})
	SkippedLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_lines_total",
		Help:      "Number of trace report lines that could not be parsed.",
	})

	DrawCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "draw_calls_total",
		Help:      "Number of interval reconstructions.",
	})
	Boxes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "boxes_total",
		Help:      "Number of boxes emitted, by variant and family.",
	}, []string{"variant", "family"})
	DrawDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "draw_duration_seconds",
		Help:      "Time spent reconstructing intervals for one task.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	Variants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "variants_registered",
		Help:      "Number of classifier variants available for the loaded trace.",
	})
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
