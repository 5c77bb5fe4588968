package task

import (
	"context"
	"time"

	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/rs/zerolog"
)

// WorkerConfig tunes one worker's polling and leasing behavior.
type WorkerConfig struct {
	// ID identifies this worker instance in lease ownership and logs.
	ID string
	// PollInterval is how often the worker scans for due work.
	PollInterval time.Duration
	// LeaseDuration bounds how long a claimed task is held before it's
	// considered abandoned and eligible for another worker.
	LeaseDuration time.Duration
	// BatchSize caps how many due tasks are leased per poll.
	BatchSize int
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 2 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.ID == "" {
		c.ID = "worker"
	}
	return c
}

// Worker polls Queue for due tasks of one Kind and runs them through a
// Handler, adapted from the teacher's pkg/scheduler ticker-loop pattern
// (time.Ticker-driven scan, select against a shutdown signal) but
// generalized from a raw stopCh to context.Context cancellation per
// spec.md §4.8/§9.
type Worker struct {
	queue   *Queue
	handler Handler
	cfg     WorkerConfig
	logger  zerolog.Logger
}

// NewWorker constructs a Worker bound to handler.Kind().
func NewWorker(queue *Queue, handler Handler, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  log.WithTaskID(cfg.ID),
	}
}

// Run blocks, polling on cfg.PollInterval until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("task poll cycle failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pollOnce runs a single lease-and-execute pass over due tasks of this
// worker's kind.
func (w *Worker) pollOnce(ctx context.Context) error {
	due, err := w.queue.Due(ctx, time.Now(), 0)
	if err != nil {
		return err
	}
	metrics.TaskQueueDepth.Set(float64(len(due)))

	taken := 0
	for _, t := range due {
		if t.Kind != w.handler.Kind() {
			continue
		}
		if !t.LeaseUntil.IsZero() && t.LeaseUntil.After(time.Now()) {
			continue // leased by someone else, not yet expired
		}
		if taken >= w.cfg.BatchSize {
			break
		}
		taken++
		w.runOne(ctx, t)
	}
	return nil
}

func (w *Worker) runOne(ctx context.Context, t Task) {
	kindLabel := kindLabel(t.Kind)

	leased, err := w.queue.Lease(ctx, t, w.cfg.ID, time.Now().Add(w.cfg.LeaseDuration))
	if err != nil {
		if storeerr.Is(err, storeerr.KindConflict) {
			return // another worker won the race
		}
		w.logger.Error().Err(err).Str("kind", kindLabel).Msg("lease failed")
		return
	}
	metrics.TasksLeasedTotal.WithLabelValues(kindLabel).Inc()

	timer := metrics.NewTimer()
	ops, err := w.handler.Handle(ctx, leased)
	timer.ObserveDurationVec(metrics.TaskExecutionDuration, kindLabel)
	if err != nil {
		metrics.TasksFailedTotal.WithLabelValues(kindLabel).Inc()
		w.logger.Error().Err(err).Str("kind", kindLabel).Msg("task handler failed")
		if relErr := w.queue.Release(ctx, leased); relErr != nil {
			w.logger.Error().Err(relErr).Msg("failed to release lease after handler error")
		}
		return
	}

	if err := w.queue.Complete(ctx, leased, ops); err != nil {
		metrics.TasksFailedTotal.WithLabelValues(kindLabel).Inc()
		w.logger.Error().Err(err).Str("kind", kindLabel).Msg("task completion failed")
	}
}

func kindLabel(k Kind) string {
	switch k {
	case KindBlobPurge:
		return "blob_purge"
	case KindIndexExtract:
		return "index_extract"
	case KindAlarmDelivery:
		return "alarm_delivery"
	case KindBayesTrain:
		return "bayes_train"
	case KindLogRetain:
		return "log_retain"
	case KindRebuildIndex:
		return "rebuild_index"
	default:
		return "unknown"
	}
}
