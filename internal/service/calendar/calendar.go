package calendar

import (
	"context"
	"fmt"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	icache "PortDelta/internal/service/cache"
	applogger "PortDelta/pkg/logger"
)

const DefaultMaxLookback = 10

// day is a memoized answer for one date; session is nil on closed days.
type day struct {
	session *models.TradingSession
}

// Calendar answers per-day questions from a SessionSource and memoizes them.
type Calendar struct {
	source      drepo.SessionSource
	maxLookback int
	memoTTL     time.Duration
	memo        *icache.TTLCache[models.Date, day]
	logger      *applogger.Logger
}

var _ drepo.TradingCalendar = (*Calendar)(nil)

type Option func(*Calendar)

// WithMaxLookback bounds the backward walk of PreviousTradingDay.
func WithMaxLookback(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.maxLookback = n
		}
	}
}

// WithMemoTTL sets how long fetched days are remembered. Zero keeps them forever.
func WithMemoTTL(ttl time.Duration) Option {
	return func(c *Calendar) { c.memoTTL = ttl }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Calendar) { c.logger = l }
}

func New(source drepo.SessionSource, opts ...Option) *Calendar {
	c := &Calendar{
		source:      source,
		maxLookback: DefaultMaxLookback,
		memoTTL:     6 * time.Hour,
		memo:        icache.NewTTLCache[models.Date, day](),
		logger:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calendar) Location() *time.Location { return c.source.Location() }

// SessionFor returns the session of d, or nil if the exchange is closed.
// A miss loads the lookback window ending at d so that a following
// PreviousTradingDay walk is served from memory.
func (c *Calendar) SessionFor(ctx context.Context, d models.Date) (*models.TradingSession, error) {
	if v, ok := c.memo.Get(d); ok {
		return v.session, nil
	}
	if err := c.load(ctx, d.Add(-c.maxLookback), d); err != nil {
		return nil, err
	}
	v, _ := c.memo.Get(d)
	return v.session, nil
}

// PreviousTradingDay walks back from d one day at a time, at most maxLookback days.
func (c *Calendar) PreviousTradingDay(ctx context.Context, d models.Date) (models.Date, error) {
	for i := 1; i <= c.maxLookback; i++ {
		prev := d.Add(-i)
		s, err := c.SessionFor(ctx, prev)
		if err != nil {
			return models.Date{}, err
		}
		if s != nil {
			return prev, nil
		}
	}
	return models.Date{}, fmt.Errorf("%w: none within %d days before %s", models.ErrNoTradingDayFound, c.maxLookback, d)
}

// Reset drops memoized days.
func (c *Calendar) Reset() { c.memo.Purge() }

func (c *Calendar) load(ctx context.Context, from, to models.Date) error {
	sessions, err := c.source.Sessions(ctx, from, to)
	if err != nil {
		return fmt.Errorf("calendar sessions %s..%s: %w", from, to, err)
	}

	byDate := make(map[models.Date]*models.TradingSession, len(sessions))
	for i := range sessions {
		s := sessions[i]
		byDate[s.Date] = &s
	}

	// An empty window usually means the source has no data for the range;
	// remembering every day as closed would hide that.
	if len(byDate) == 0 {
		c.logger.Warn("calendar: source returned no sessions",
			applogger.Stringer("from", from),
			applogger.Stringer("to", to),
		)
		return nil
	}

	for d := from; !d.After(to); d = d.Add(1) {
		c.memo.Set(d, day{session: byDate[d]}, c.memoTTL)
	}
	return nil
}
