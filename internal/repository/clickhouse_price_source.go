package repository

import (
	"context"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// CHPriceSource prices symbols from recorded ticks. The daily close is
// the last tick of the regular session.
type CHPriceSource struct {
	ticks    drepo.TickStorage
	calendar drepo.TradingCalendar
	lookback time.Duration
	now      func() time.Time
}

var _ drepo.PriceSource = (*CHPriceSource)(nil)

func NewCHPriceSource(ticks drepo.TickStorage, cal drepo.TradingCalendar) *CHPriceSource {
	return &CHPriceSource{
		ticks:    ticks,
		calendar: cal,
		lookback: 96 * time.Hour,
		now:      time.Now,
	}
}

func (s *CHPriceSource) DailyClose(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error) {
	session, err := s.calendar.SessionFor(ctx, day)
	if err != nil {
		return decimal.Zero, err
	}
	if session == nil {
		return decimal.Zero, models.PriceUnavailable(symbol, "%s is not a trading day", day)
	}
	return s.last(ctx, symbol, session.Open, session.Close)
}

func (s *CHPriceSource) ExtendedQuoteOn(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error) {
	loc := s.calendar.Location()
	return s.last(ctx, symbol, day.At(4, 0, loc), day.At(20, 0, loc))
}

func (s *CHPriceSource) LatestExtendedQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	now := s.now()
	return s.last(ctx, symbol, now.Add(-s.lookback), now)
}

func (s *CHPriceSource) last(ctx context.Context, symbol string, from, to time.Time) (decimal.Decimal, error) {
	t, err := s.ticks.LastBetween(ctx, symbol, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if t == nil {
		return decimal.Zero, models.PriceUnavailable(symbol, "no ticks between %s and %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return t.Price, nil
}
