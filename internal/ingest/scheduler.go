package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrCycleInProgress is returned by RunOnce when the skip policy is active and
// another cycle holds the cycle lock.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")

// Options control cycle scheduling.
type Options struct {
	Interval   time.Duration
	RunOnStart bool
	// Concurrency caps the workers running at once. Zero runs one worker per
	// plant.
	Concurrency  int
	CycleTimeout time.Duration
	// SkipOverlap skips a tick while another cycle holds the lock. When false
	// every tick starts a cycle.
	SkipOverlap bool
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSink publishes the readings inserted by each cycle to sink.
func WithSink(sink ReadingSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithCycleLock replaces the in-process cycle lock, e.g. with a distributed one.
func WithCycleLock(lock CycleLock) Option {
	return func(s *Scheduler) { s.lock = lock }
}

// WithClock sets the clock that drives the ticker and stamps summaries.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// Scheduler runs ingestion cycles on a fixed interval.
type Scheduler struct {
	directory PlantDirectory
	worker    PlantIngester
	sink      ReadingSink
	lock      CycleLock
	clock     clockwork.Clock
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready   atomic.Bool
	skipped atomic.Int64
	running sync.WaitGroup

	mu   sync.RWMutex
	last *domain.CycleSummary
}

// NewScheduler creates a Scheduler.
func NewScheduler(dir PlantDirectory, worker PlantIngester, opts Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Scheduler {
	s := &Scheduler{
		directory: dir,
		worker:    worker,
		lock:      NewLocalLock(),
		clock:     clockwork.NewRealClock(),
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// CheckReadiness returns nil once at least one cycle has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no ingestion cycle has completed yet")
	}
	return nil
}

// LastSummary returns the summary of the most recently completed cycle.
func (s *Scheduler) LastSummary() (domain.CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return domain.CycleSummary{}, false
	}
	return *s.last, true
}

// SkippedCycles returns how many ticks were skipped under the skip policy.
func (s *Scheduler) SkippedCycles() int64 {
	return s.skipped.Load()
}

// Run triggers a cycle on every tick until ctx is cancelled, then waits for
// in-flight cycles to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return fmt.Errorf("invalid ingest interval %s", s.opts.Interval)
	}

	s.logger.Info("scheduler started",
		"interval", s.opts.Interval,
		"run_on_start", s.opts.RunOnStart,
		"concurrency", s.opts.Concurrency,
		"skip_overlap", s.opts.SkipOverlap,
	)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	ticker := s.clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	if s.opts.RunOnStart {
		s.trigger(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			s.running.Wait()
			return nil
		case <-ticker.Chan():
			s.trigger(ctx)
		}
	}
}

// RunOnce runs a single cycle synchronously, honouring the overlap policy.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.CycleSummary, error) {
	release, ok := s.acquire(ctx)
	if !ok {
		return domain.CycleSummary{}, ErrCycleInProgress
	}
	defer release()
	return s.RunCycle(ctx)
}

// trigger starts a cycle in the background. Cycles are not tied to the
// ticker, so under the allow policy a slow cycle can overlap the next one.
func (s *Scheduler) trigger(ctx context.Context) {
	release, ok := s.acquire(ctx)
	if !ok {
		return
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer release()
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("ingestion cycle failed", "error", err)
		}
	}()
}

func (s *Scheduler) acquire(ctx context.Context) (func(), bool) {
	if !s.opts.SkipOverlap {
		return func() {}, true
	}
	release, ok, err := s.lock.TryAcquire(ctx)
	if err != nil {
		s.logger.Error("cycle lock unavailable, skipping tick", "error", err)
	}
	if err != nil || !ok {
		s.skipped.Add(1)
		s.metrics.CyclesSkipped.Inc()
		if err == nil {
			s.logger.Info("previous cycle still running, skipping tick")
		}
		return nil, false
	}
	return release, true
}

// RunCycle lists eligible plants, ingests each concurrently and aggregates
// the outcomes. Only a failure to list plants is returned as an error.
func (s *Scheduler) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	summary := domain.NewCycleSummary(uuid.NewString(), s.clock.Now().UTC())
	logger := s.logger.With("cycle_id", summary.CycleID)

	if s.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CycleTimeout)
		defer cancel()
	}

	plants, err := s.directory.ListEligiblePlants(ctx)
	if err != nil {
		s.metrics.Cycles.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("list eligible plants: %w", err)
	}
	plants = domain.FilterEligible(plants)
	s.metrics.PlantsPerCycle.Observe(float64(len(plants)))
	logger.Info("ingestion cycle started", "plants", len(plants))

	outcomes := make([]domain.Outcome, len(plants))
	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for i, plant := range plants {
		g.Go(func() error {
			outcomes[i] = s.worker.Ingest(ctx, plant)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.Cycles.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("ingest plants: %w", err)
	}

	inserted := make([]domain.Reading, 0, len(outcomes))
	for _, o := range outcomes {
		summary.Record(o)
		if o.Status == domain.StatusInserted && o.Reading != nil {
			inserted = append(inserted, *o.Reading)
		}
	}
	summary.Finish(s.clock.Now().UTC())

	s.publish(ctx, logger, inserted)

	s.metrics.Cycles.WithLabelValues("completed").Inc()
	s.metrics.CycleDuration.Observe(summary.Duration().Seconds())
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	s.ready.Store(true)

	logger.Info("ingestion cycle finished",
		"plants", summary.Plants,
		"inserted", summary.Count(domain.StatusInserted),
		"already_exists", summary.Count(domain.StatusAlreadyExists),
		"no_data", summary.Count(domain.StatusNoData),
		"failed", summary.Count(domain.StatusFailed),
		"duration", summary.Duration(),
	)
	return summary, nil
}

func (s *Scheduler) publish(ctx context.Context, logger *slog.Logger, readings []domain.Reading) {
	if s.sink == nil || len(readings) == 0 {
		return
	}
	if err := s.sink.PublishBatch(ctx, readings); err != nil {
		s.metrics.SinkErrors.Inc()
		logger.Error("publish inserted readings failed", "readings", len(readings), "error", err)
		return
	}
	s.metrics.SinkPublished.Add(float64(len(readings)))
}
