package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multimodal_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Job Metrics
	JobsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_jobs_created_total",
			Help: "Total number of dataset jobs created",
		},
		[]string{"type"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_jobs_completed_total",
			Help: "Total number of finished dataset jobs",
		},
		[]string{"type", "status"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "multimodal_jobs_in_progress",
			Help: "Number of jobs currently being processed",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multimodal_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"type"},
	)

	// Ingest Metrics
	IngestStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multimodal_ingest_stage_duration_seconds",
			Help:    "Time spent writing one modality of a container",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"modality"},
	)

	MediaDurationIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "multimodal_media_duration_ingested_seconds_total",
			Help: "Total duration of media written to containers in seconds",
		},
	)

	ContainerSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "multimodal_container_size_bytes",
			Help:    "Size of written containers in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 15), // 1MB to 16GB
		},
	)

	// Segmentation Metrics
	VoicedSegmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "multimodal_voiced_segments_total",
			Help: "Total number of voiced segments detected",
		},
	)

	VoicedCoverageRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "multimodal_voiced_coverage_ratio",
			Help:    "Share of an audio facet covered by voiced segments",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	SpeechSegmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "multimodal_non_subtitled_speech_segments_total",
			Help: "Total number of voiced segments without subtitles",
		},
	)

	// Read Metrics
	FacetReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multimodal_facet_read_duration_seconds",
			Help:    "Facet read latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"facet_type"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multimodal_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multimodal_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multimodal_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordJobCreated records a job creation
func RecordJobCreated(jobType string) {
	JobsCreatedTotal.WithLabelValues(jobType).Inc()
}

// RecordJobCompleted records a job completion
func RecordJobCompleted(jobType, status string, duration float64) {
	JobsCompletedTotal.WithLabelValues(jobType, status).Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration)
}

// RecordIngestStage records the time spent on one modality
func RecordIngestStage(modality string, duration float64) {
	IngestStageDuration.WithLabelValues(modality).Observe(duration)
}

// RecordContainer records a finished container
func RecordContainer(mediaSeconds float64, sizeBytes int64) {
	MediaDurationIngested.Add(mediaSeconds)
	ContainerSizeBytes.Observe(float64(sizeBytes))
}

// RecordSegmentation records voiced segments found in one audio facet
func RecordSegmentation(segments int, covered, total float64) {
	VoicedSegmentsTotal.Add(float64(segments))
	if total > 0 {
		VoicedCoverageRatio.Observe(covered / total)
	}
}

// RecordSpeechSegments records non-subtitled speech segments
func RecordSpeechSegments(n int) {
	SpeechSegmentsTotal.Add(float64(n))
}

// RecordFacetRead records a facet read
func RecordFacetRead(facetType string, duration float64) {
	FacetReadDuration.WithLabelValues(facetType).Observe(duration)
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
