package presenter

import (
	"context"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
)

// LatestStore keeps the most recent result and the most recent abort.
type LatestStore struct {
	mu       sync.RWMutex
	result   *models.ValuationResult
	failure  error
	failedAt time.Time
	now      func() time.Time
}

func NewLatestStore() *LatestStore { return &LatestStore{now: time.Now} }

func (s *LatestStore) Present(_ context.Context, r *models.ValuationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
	s.failure = nil
	return nil
}

func (s *LatestStore) Fail(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
	s.failedAt = s.now()
}

// Latest returns the last presented result, nil before the first round.
func (s *LatestStore) Latest() *models.ValuationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// LastFailure returns the abort that followed the last result, if any.
func (s *LatestStore) LastFailure() (error, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure, s.failedAt
}
