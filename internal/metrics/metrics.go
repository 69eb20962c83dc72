// Package metrics holds the Prometheus instrumentation for the storage
// engine. Everything registers against the default registry; callers that
// want an HTTP endpoint can mount promhttp.Handler themselves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttachmentSaves counts saveAttachment calls by outcome:
	// "written" (new blob), "deduplicated" (existing blob reused) or
	// "inlined" (bytes stored in the attachment row).
	AttachmentSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailloft_attachment_saves_total",
			Help: "Total number of attachment saves by outcome",
		},
		[]string{"outcome"},
	)

	// CacheHits and CacheMisses track the attachment cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailloft_attachment_cache_hits_total",
		Help: "Total number of attachment cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailloft_attachment_cache_misses_total",
		Help: "Total number of attachment cache misses",
	})

	// CleanupRemovedFiles and CleanupRemovedBytes report retention sweeps,
	// labelled by sweep ("age", "orphan", "size").
	CleanupRemovedFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailloft_cleanup_removed_files_total",
			Help: "Total number of blob files removed by retention sweeps",
		},
		[]string{"sweep"},
	)
	CleanupRemovedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailloft_cleanup_removed_bytes_total",
			Help: "Total bytes reclaimed by retention sweeps",
		},
		[]string{"sweep"},
	)

	// DedupRowsRemoved counts attachment rows collapsed by the
	// relational-level deduplication pass.
	DedupRowsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailloft_dedup_rows_removed_total",
		Help: "Total number of duplicate attachment rows removed",
	})
)
