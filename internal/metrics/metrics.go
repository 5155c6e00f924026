package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan pipeline metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleria_scans_total",
			Help: "Completed scan sessions by terminal status",
		},
		[]string{"status"}, // "completed", "cancelled", "failed"
	)

	FilesSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_scan_files_seen_total",
			Help: "Files emitted by the walker across all scans",
		},
	)

	FilesInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_scan_files_inserted_total",
			Help: "New media records inserted across all scans",
		},
	)

	ScanErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleria_scan_errors_total",
			Help: "Per-file errors during scans",
		},
		[]string{"stage"}, // "walk", "stat", "upsert"
	)
)

// Thumbnail cache metrics
var (
	ThumbnailRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleria_thumbnail_requests_total",
			Help: "Thumbnail cache lookups by outcome",
		},
		[]string{"outcome"}, // "hit", "pending", "video", "failed"
	)

	ThumbnailDecodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleria_thumbnail_decodes_total",
			Help: "Asynchronous thumbnail decode operations by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	ThumbnailCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galleria_thumbnail_cache_entries",
			Help: "Entries currently held by the in-memory thumbnail cache",
		},
	)
)

// Initialize pre-populates all expected label combinations so every metric
// is exported from the first Prometheus scrape.
func Initialize() {
	for _, s := range []string{"completed", "cancelled", "failed"} {
		ScansTotal.WithLabelValues(s)
	}
	for _, s := range []string{"walk", "stat", "upsert"} {
		ScanErrors.WithLabelValues(s)
	}
	for _, s := range []string{"hit", "pending", "video", "failed"} {
		ThumbnailRequests.WithLabelValues(s)
	}
	for _, s := range []string{"ok", "error"} {
		ThumbnailDecodes.WithLabelValues(s)
	}
}
