package service

import (
	"context"
	"time"

	"PortDelta/internal/domain/models"
)

// Presenter renders a finished valuation. Fail is called when a round aborts.
type Presenter interface {
	Present(ctx context.Context, r *models.ValuationResult) error
	Fail(ctx context.Context, err error)
}

// Evaluator computes one valuation round for the given instant.
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) (*models.ValuationResult, error)
}
