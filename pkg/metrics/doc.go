/*
Package metrics provides Prometheus metrics collection and exposition for the
storage core.

The metrics package defines and registers all storage metrics using the
Prometheus client library, providing observability into batch commit
throughput, kv/blob backend latency, index and changelog activity, and task
queue health. Metrics are exposed via HTTP endpoint for scraping by
Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (quota usage)        │          │
	│  │  Counter: Monotonic increases (commits)     │          │
	│  │  Histogram: Distributions (kv op latency)   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Batch: commits, retries, change id         │          │
	│  │  KV: op count, op latency, open iterators   │          │
	│  │  Blob: writes, bytes, purges, read latency  │          │
	│  │  Index: mutations, diff latency, tokens     │          │
	│  │  Changelog: sync queries, query latency     │          │
	│  │  Task: leases, execution latency, failures  │          │
	│  │  Quota: usage bytes, exceeded count         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: quota usage bytes, task queue depth
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: batch commits total, blobs purged total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: kv op duration, sync query duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Batch Metrics:

warren_batch_commits_total{outcome}:
  - Type: Counter
  - Description: Total batch commits by outcome (committed/conflict/error)

warren_batch_commit_duration_seconds:
  - Type: Histogram
  - Description: Time taken to commit a batch

warren_batch_retries_total:
  - Type: Counter
  - Description: Total batch commit retries after a write conflict

warren_change_id_high_watermark{account, sync_collection}:
  - Type: Gauge
  - Description: Highest allocated change id per account and sync collection

KV Backend Metrics:

warren_kv_ops_total{backend, op}:
  - Type: Counter
  - Description: Total kv store operations by backend and op kind

warren_kv_op_duration_seconds{backend, op}:
  - Type: Histogram
  - Description: kv operation duration by backend and op kind

warren_kv_iterators_open:
  - Type: Gauge
  - Description: Number of currently open range iterators

Blob Store Metrics:

warren_blob_writes_total:
  - Type: Counter
  - Description: Total blob writes

warren_blob_bytes_written_total:
  - Type: Counter
  - Description: Total blob bytes written

warren_blob_purged_total:
  - Type: Counter
  - Description: Total blobs purged after their link rows expired

warren_blob_read_duration_seconds{backend}:
  - Type: Histogram
  - Description: Blob read duration by backend (fs/s3)

Index Metrics:

warren_index_mutations_total{kind}:
  - Type: Counter
  - Description: Total secondary index mutations by kind (property/index/blob/acl/quota/log)

warren_index_diff_duration_seconds:
  - Type: Histogram
  - Description: Time taken to diff an old/new archived record pair

warren_tokens_indexed_total:
  - Type: Counter
  - Description: Total tokens emitted by the full-text tokenizer

Changelog Metrics:

warren_sync_queries_total{result}:
  - Type: Counter
  - Description: Total changelog sync queries by result kind (exact/intermediate/reset)

warren_sync_query_duration_seconds:
  - Type: Histogram
  - Description: Time taken to resolve a sync query

Task Queue Metrics:

warren_tasks_leased_total{kind}:
  - Type: Counter
  - Description: Total tasks leased by kind

warren_task_execution_duration_seconds{kind}:
  - Type: Histogram
  - Description: Task execution duration by kind

warren_tasks_failed_total{kind}:
  - Type: Counter
  - Description: Total task executions that returned an error

warren_task_queue_depth:
  - Type: Gauge
  - Description: Number of tasks currently due or overdue

Quota Metrics:

warren_quota_usage_bytes{account}:
  - Type: Gauge
  - Description: Current quota usage in bytes by account

warren_quota_exceeded_total:
  - Type: Counter
  - Description: Total operations rejected for exceeding quota

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/warren/pkg/metrics"

	metrics.QuotaUsageBytes.WithLabelValues("7").Set(1 << 20)
	metrics.TaskQueueDepth.Set(3)

Updating Counter Metrics:

	metrics.BatchCommitsTotal.WithLabelValues("committed").Inc()
	metrics.KVOpsTotal.WithLabelValues("badger", "write").Add(1)

Recording Histogram Observations:

	metrics.BatchCommitDuration.Observe(0.004) // 4ms

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.BatchCommitDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.KVOpDuration, "badger", "write")

Complete Example:

	package main

	import (
		"net/http"
		"github.com/cuemby/warren/pkg/metrics"
	)

	func main() {
		timer := metrics.NewTimer()
		commitBatch()
		timer.ObserveDuration(metrics.BatchCommitDuration)
		metrics.BatchCommitsTotal.WithLabelValues("committed").Inc()

		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func commitBatch() {}

# Integration Points

This package integrates with:

  - internal/store/batch: records commit and retry counters
  - store: sets the quota-usage and task-queue-depth gauges
  - internal/store/blob: records write/read/purge counters
  - internal/store/index: records mutation counts and diff latency
  - internal/store/changelog: records sync query counters and latency
  - internal/store/task: records lease, execution, and failure counters
  - Prometheus: scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (document ids, timestamps)
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time

# Troubleshooting

Missing Metrics:
  - Check: metric registered in init() function
  - Check: MustRegister called (panics on duplicate)

High Cardinality:
  - Cause: using document/task ids as labels
  - Solution: aggregate high-cardinality detail in logs instead

# Monitoring

Prometheus Queries (PromQL):

Batch Health:
  - Commit rate: rate(warren_batch_commits_total{outcome="committed"}[1m])
  - Conflict rate: rate(warren_batch_commits_total{outcome="conflict"}[1m])
  - p95 commit latency: histogram_quantile(0.95, warren_batch_commit_duration_seconds_bucket)

Task Queue Health:
  - Queue depth: warren_task_queue_depth
  - Failure rate: rate(warren_tasks_failed_total[5m])

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
