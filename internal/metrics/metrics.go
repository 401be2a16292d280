package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolver metrics
var (
	ResolveRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocull_resolve_requests_total",
			Help: "Total number of metadata resolution requests by source",
		},
		[]string{"source"}, // "cache", "report", "exiftool", "native", "sidecar", "empty"
	)

	MetadataCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photocull_metadata_cache_entries",
			Help: "Number of entries in the metadata memory cache",
		},
	)

	MetadataCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photocull_metadata_cache_evictions_total",
			Help: "Total number of FIFO evictions from the metadata cache",
		},
	)
)

// ExifTool metrics
var (
	ExifToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocull_exiftool_invocations_total",
			Help: "Total number of exiftool batch invocations",
		},
		[]string{"status"}, // "ok", "error", "timeout"
	)

	ExifToolInvocationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photocull_exiftool_invocation_duration_seconds",
			Help:    "Duration of exiftool batch invocations in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ExifNativeFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photocull_exif_native_fallbacks_total",
			Help: "Total number of files decoded by the in-process EXIF reader",
		},
	)
)

// Scanner metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocull_scans_total",
			Help: "Total number of directory scans by source",
		},
		[]string{"source"}, // "report", "walk"
	)

	ScanFilesListed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photocull_scan_files_listed",
			Help:    "Number of image files listed per directory scan",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photocull_thumbnail_cache_entries",
			Help: "Number of entries in the thumbnail memory cache",
		},
		[]string{"bucket"}, // "mips", "base"
	)

	ThumbnailCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photocull_thumbnail_cache_bytes",
			Help: "Approximate bytes held by the thumbnail memory cache",
		},
	)

	ThumbnailBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocull_thumbnail_builds_total",
			Help: "Total number of thumbnail builds by source",
		},
		[]string{"source"}, // "cache", "preview_file", "embedded", "decode", "vips"
	)

	ThumbnailBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photocull_thumbnail_build_duration_seconds",
			Help:    "Duration of single thumbnail builds in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// Viewport scheduler metrics
var (
	ViewportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocull_viewport_jobs_total",
			Help: "Total number of viewport batch jobs by outcome",
		},
		[]string{"outcome"}, // "submitted", "deduped", "cancelled"
	)

	ViewportStaleResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photocull_viewport_stale_results_total",
			Help: "Total number of thumbnail results discarded for a stale generation",
		},
	)

	ViewportWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photocull_viewport_workers",
			Help: "Number of workers in the thumbnail worker pool",
		},
	)
)
