// Package reconcile repairs click counters that drifted from their click
// event rows, which happens when a process dies between appending an event
// and incrementing the counter.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shortener/pkg/logging"
	"shortener/pkg/metrics"
	"shortener/pkg/storage"

	"github.com/robfig/cron/v3"
)

// DefaultGrace is used when a Reconciler is built with a zero grace.
const DefaultGrace = time.Minute

type Reconciler struct {
	store   storage.MappingStore
	timeout time.Duration
	grace   time.Duration
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewReconciler returns a Reconciler whose runs are bounded by timeout;
// zero means unbounded. Mappings clicked within grace of a run are skipped.
func NewReconciler(store storage.MappingStore, timeout, grace time.Duration, logger *logging.Logger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Reconciler{store: store, timeout: timeout, grace: grace, logger: logger, metrics: m, now: time.Now}
}

// RunOnce raises every settled counter that fell behind its click events
// and reports how many it fixed.
func (r *Reconciler) RunOnce(ctx context.Context) (int64, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.now()
	fixed, err := r.store.ReconcileClickCounts(ctx, start.Add(-r.grace))
	if err != nil {
		r.logger.Error(ctx, "click count reconciliation failed", "error", err)
		return 0, fmt.Errorf("failed to reconcile click counts: %w", err)
	}
	r.metrics.Reconciled(fixed)

	if fixed > 0 {
		r.logger.Warn(ctx, "click counts reconciled", "corrected", fixed, "duration", time.Since(start))
	} else {
		r.logger.Debug(ctx, "click counts consistent", "duration", time.Since(start))
	}
	return fixed, nil
}

// Scheduler runs a Reconciler on a cron schedule. Runs never overlap.
type Scheduler struct {
	reconciler *Reconciler
	schedule   string
	cron       *cron.Cron
	logger     *logging.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(r *Reconciler, schedule string) *Scheduler {
	return &Scheduler{
		reconciler: r,
		schedule:   schedule,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     r.logger,
	}
}

// Start registers the job and starts the cron loop. It stops when ctx is
// cancelled. An empty schedule leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info(ctx, "reconcile schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.reconciler.RunOnce(logging.WithCorrelationID(ctx))
	}); err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info(ctx, "reconcile scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info(context.Background(), "reconcile scheduler stopped")
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
