package presenter

import (
	"context"
	"errors"

	"PortDelta/internal/domain/models"
	dsvc "PortDelta/internal/domain/service"
)

// Multi fans out to every presenter. A failing presenter does not stop the
// others; their errors are joined.
type Multi []dsvc.Presenter

func (m Multi) Present(ctx context.Context, r *models.ValuationResult) error {
	var errs []error
	for _, p := range m {
		if err := p.Present(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Fail(ctx context.Context, err error) {
	for _, p := range m {
		p.Fail(ctx, err)
	}
}
