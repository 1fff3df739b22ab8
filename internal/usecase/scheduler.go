package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	dsvc "PortDelta/internal/domain/service"
	applogger "PortDelta/pkg/logger"
)

// ErrRoundInProgress is returned by RunOnce while another round is running.
var ErrRoundInProgress = errors.New("valuation round in progress")

const DefaultInterval = 60 * time.Second

// Scheduler drives valuation rounds: one at start, then one per interval and
// one per Trigger. Rounds never overlap.
type Scheduler struct {
	eval       dsvc.Evaluator
	presenter  dsvc.Presenter
	interval   time.Duration
	runOnStart bool
	metrics    drepo.Metrics
	logger     *applogger.Logger
	now        func() time.Time

	round   sync.Mutex
	trigger chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithRunOnStart(v bool) SchedulerOption {
	return func(s *Scheduler) { s.runOnStart = v }
}

// WithSchedulerClock overrides the instant handed to the evaluator.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSchedulerMetrics(m drepo.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithSchedulerLogger(l *applogger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewScheduler(eval dsvc.Evaluator, presenter dsvc.Presenter, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		eval:       eval,
		presenter:  presenter,
		interval:   DefaultInterval,
		runOnStart: true,
		metrics:    drepo.NoopMetrics{},
		logger:     applogger.Nop(),
		now:        time.Now,
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Trigger asks Run for an immediate round. Requests made while one is
// already pending are merged.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		applogger.Duration("interval", s.interval),
		applogger.Bool("run_on_start", s.runOnStart))

	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx)
	if errors.Is(err, ErrRoundInProgress) {
		s.logger.Debug("round skipped, previous one still running")
	}
}

// RunOnce evaluates and presents a single round. The returned error is
// ErrRoundInProgress or the evaluator's abort error.
func (s *Scheduler) RunOnce(ctx context.Context) (*models.ValuationResult, error) {
	return s.RunOnceAt(ctx, s.now())
}

// RunOnceAt is RunOnce evaluated as of at.
func (s *Scheduler) RunOnceAt(ctx context.Context, at time.Time) (*models.ValuationResult, error) {
	if !s.round.TryLock() {
		s.metrics.RecordSkippedRound()
		return nil, ErrRoundInProgress
	}
	defer s.round.Unlock()

	start := time.Now()
	defer func() { s.metrics.RecordLatency("round", time.Since(start).Seconds()) }()

	r, err := s.eval.Evaluate(ctx, at)
	if err != nil {
		s.presenter.Fail(ctx, err)
		return nil, err
	}
	if err := s.presenter.Present(ctx, r); err != nil {
		s.metrics.RecordError("present")
		s.logger.Warn("presenting valuation failed", applogger.String("round_id", r.RoundID), applogger.Error(err))
	}
	return r, nil
}
