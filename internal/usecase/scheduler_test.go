package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvaluator struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	entered chan struct{}
	last    atomic.Value
}

func (s *stubEvaluator) Evaluate(_ context.Context, now time.Time) (*models.ValuationResult, error) {
	s.calls.Add(1)
	s.last.Store(now)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.ValuationResult{RoundID: "r", EvaluatedAt: now, Delta: d("15")}, nil
}

type recordingPresenter struct {
	mu        sync.Mutex
	presented []*models.ValuationResult
	failed    []error
	err       error
}

func (p *recordingPresenter) Present(_ context.Context, r *models.ValuationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, r)
	return p.err
}

func (p *recordingPresenter) Fail(_ context.Context, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, err)
}

func (p *recordingPresenter) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.presented), len(p.failed)
}

type skipCounter struct {
	drepo.NoopMetrics
	skipped atomic.Int32
}

func (m *skipCounter) RecordSkippedRound() { m.skipped.Add(1) }

func TestSchedulerRunOncePresents(t *testing.T) {
	at := time.Date(2024, 2, 3, 11, 0, 0, 0, time.UTC)
	eval := &stubEvaluator{}
	pres := &recordingPresenter{}
	s := NewScheduler(eval, pres, WithSchedulerClock(func() time.Time { return at }))

	r, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, r.EvaluatedAt)
	presented, failed := pres.counts()
	assert.Equal(t, 1, presented)
	assert.Zero(t, failed)
}

func TestSchedulerRunOnceReportsAbort(t *testing.T) {
	eval := &stubEvaluator{err: models.ErrCalendarUnresolvable}
	pres := &recordingPresenter{}
	s := NewScheduler(eval, pres)

	r, err := s.RunOnce(context.Background())
	assert.Nil(t, r)
	assert.ErrorIs(t, err, models.ErrCalendarUnresolvable)
	presented, failed := pres.counts()
	assert.Zero(t, presented)
	assert.Equal(t, 1, failed)
}

func TestSchedulerPresenterErrorDoesNotFailRound(t *testing.T) {
	pres := &recordingPresenter{err: errors.New("kafka down")}
	s := NewScheduler(&stubEvaluator{}, pres)

	r, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestSchedulerRejectsOverlappingRounds(t *testing.T) {
	eval := &stubEvaluator{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	m := &skipCounter{}
	s := NewScheduler(eval, &recordingPresenter{}, WithSchedulerMetrics(m))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-eval.entered

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRoundInProgress)
	assert.Equal(t, int32(1), m.skipped.Load())

	close(eval.release)
	require.NoError(t, <-done)
}

func TestSchedulerTriggerCoalesces(t *testing.T) {
	s := NewScheduler(&stubEvaluator{}, &recordingPresenter{})
	assert.True(t, s.Trigger())
	assert.False(t, s.Trigger())
}

func TestSchedulerRunLoop(t *testing.T) {
	eval := &stubEvaluator{}
	pres := &recordingPresenter{}
	s := NewScheduler(eval, pres, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return eval.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Trigger()
	assert.Eventually(t, func() bool { return eval.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	presented, _ := pres.counts()
	assert.Equal(t, 2, presented)
}

func TestSchedulerWithoutRunOnStartWaits(t *testing.T) {
	eval := &stubEvaluator{}
	s := NewScheduler(eval, &recordingPresenter{}, WithInterval(time.Hour), WithRunOnStart(false))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	assert.Zero(t, eval.calls.Load())
}
