package repository

import (
	"context"
	"time"

	"PortDelta/internal/domain/models"

	"github.com/shopspring/decimal"
)

// SessionSource lists the trading sessions of an exchange in [from, to].
type SessionSource interface {
	Sessions(ctx context.Context, from, to models.Date) ([]models.TradingSession, error)
	Location() *time.Location
}

// TradingCalendar answers session questions for single days.
// SessionFor returns nil when the exchange does not trade on the date.
type TradingCalendar interface {
	SessionFor(ctx context.Context, day models.Date) (*models.TradingSession, error)
	PreviousTradingDay(ctx context.Context, day models.Date) (models.Date, error)
	Location() *time.Location
}

// PriceSource is a market data provider. Missing data is reported as an
// error matching models.ErrPriceUnavailable.
type PriceSource interface {
	// DailyClose is the official close of a trading date.
	DailyClose(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error)
	// ExtendedQuoteOn is the last one-minute sample of the day's 04:00-20:00 window.
	ExtendedQuoteOn(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error)
	// LatestExtendedQuote is the freshest trade including pre and post market.
	LatestExtendedQuote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceCache remembers official closes per symbol. No eviction.
type PriceCache interface {
	Get(ctx context.Context, symbol string) (models.CachedClose, bool, error)
	Put(ctx context.Context, symbol string, c models.CachedClose) error
	Clear(ctx context.Context) error
}

type PortfolioLoader interface {
	Load(ctx context.Context) (models.Portfolio, error)
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher ships finished valuations to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, r *models.ValuationResult) error
	Close() error
}

// TickStorage records streamed trades and reads them back.
type TickStorage interface {
	Store(ctx context.Context, t *models.Trade) error
	StoreBatch(ctx context.Context, trades []*models.Trade) error
	LastBetween(ctx context.Context, symbol string, from, to time.Time) (*models.Trade, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordLastPrice(symbol string, price float64)
	RecordValuation(r *models.ValuationResult)
	RecordPriceError(side models.Side)
	RecordSkippedRound()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordError(string)                      {}
func (NoopMetrics) RecordLatency(string, float64)           {}
func (NoopMetrics) RecordLastPrice(string, float64)         {}
func (NoopMetrics) RecordValuation(*models.ValuationResult) {}
func (NoopMetrics) RecordPriceError(models.Side)            {}
func (NoopMetrics) RecordSkippedRound()                     {}
