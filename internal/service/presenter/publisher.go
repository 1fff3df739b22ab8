package presenter

import (
	"context"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	applogger "PortDelta/pkg/logger"
)

// PublisherPresenter forwards every result to a Publisher. Aborted rounds
// are only logged.
type PublisherPresenter struct {
	pub    drepo.Publisher
	logger *applogger.Logger
}

func NewPublisherPresenter(pub drepo.Publisher, logger *applogger.Logger) *PublisherPresenter {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &PublisherPresenter{pub: pub, logger: logger}
}

func (p *PublisherPresenter) Present(ctx context.Context, r *models.ValuationResult) error {
	return p.pub.Publish(ctx, r)
}

func (p *PublisherPresenter) Fail(_ context.Context, err error) {
	p.logger.Debug("nothing published for aborted round", applogger.Error(err))
}

func (p *PublisherPresenter) Close() error { return p.pub.Close() }
