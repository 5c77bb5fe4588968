package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch / commit metrics
	BatchCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_batch_commits_total",
			Help: "Total number of batch commits by outcome",
		},
		[]string{"outcome"},
	)

	BatchCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_batch_commit_duration_seconds",
			Help:    "Time taken to commit a batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_batch_retries_total",
			Help: "Total number of batch commit retries after a conflict",
		},
	)

	ChangeIDHighWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warren_change_id_high_watermark",
			Help: "Highest allocated change id per account and sync collection",
		},
		[]string{"account", "sync_collection"},
	)

	// KV backend metrics
	KVOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_kv_ops_total",
			Help: "Total number of kv store operations by backend and kind",
		},
		[]string{"backend", "op"},
	)

	KVOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warren_kv_op_duration_seconds",
			Help:    "kv operation duration in seconds by backend and kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	KVIteratorsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_kv_iterators_open",
			Help: "Number of currently open range iterators",
		},
	)

	// Blob store metrics
	BlobWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_blob_writes_total",
			Help: "Total number of blob writes",
		},
	)

	BlobBytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_blob_bytes_written_total",
			Help: "Total number of blob bytes written",
		},
	)

	BlobPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_blob_purged_total",
			Help: "Total number of blobs purged after their link rows expired",
		},
	)

	BlobReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warren_blob_read_duration_seconds",
			Help:    "Blob read duration in seconds by backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Index / tokenizer metrics
	IndexMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_index_mutations_total",
			Help: "Total number of secondary index mutations by kind",
		},
		[]string{"kind"},
	)

	IndexDiffDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_index_diff_duration_seconds",
			Help:    "Time taken to diff an old/new archived record pair in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TokensIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_tokens_indexed_total",
			Help: "Total number of tokens emitted by the full-text tokenizer",
		},
	)

	// Changelog / sync metrics
	SyncQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_sync_queries_total",
			Help: "Total number of changelog sync queries by result kind",
		},
		[]string{"result"},
	)

	SyncQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_sync_query_duration_seconds",
			Help:    "Time taken to resolve a sync query in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Task queue metrics
	TasksLeasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_tasks_leased_total",
			Help: "Total number of tasks leased by kind",
		},
		[]string{"kind"},
	)

	TaskExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warren_task_execution_duration_seconds",
			Help:    "Task execution duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_tasks_failed_total",
			Help: "Total number of task executions that returned an error",
		},
		[]string{"kind"},
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_task_queue_depth",
			Help: "Number of tasks currently due or overdue",
		},
	)

	// Quota metrics
	QuotaUsageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warren_quota_usage_bytes",
			Help: "Current quota usage in bytes by account",
		},
		[]string{"account"},
	)

	QuotaExceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_quota_exceeded_total",
			Help: "Total number of operations rejected for exceeding quota",
		},
	)
)

func init() {
	prometheus.MustRegister(BatchCommitsTotal)
	prometheus.MustRegister(BatchCommitDuration)
	prometheus.MustRegister(BatchRetriesTotal)
	prometheus.MustRegister(ChangeIDHighWatermark)

	prometheus.MustRegister(KVOpsTotal)
	prometheus.MustRegister(KVOpDuration)
	prometheus.MustRegister(KVIteratorsOpen)

	prometheus.MustRegister(BlobWritesTotal)
	prometheus.MustRegister(BlobBytesWrittenTotal)
	prometheus.MustRegister(BlobPurgedTotal)
	prometheus.MustRegister(BlobReadDuration)

	prometheus.MustRegister(IndexMutationsTotal)
	prometheus.MustRegister(IndexDiffDuration)
	prometheus.MustRegister(TokensIndexedTotal)

	prometheus.MustRegister(SyncQueriesTotal)
	prometheus.MustRegister(SyncQueryDuration)

	prometheus.MustRegister(TasksLeasedTotal)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TaskQueueDepth)

	prometheus.MustRegister(QuotaUsageBytes)
	prometheus.MustRegister(QuotaExceededTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
