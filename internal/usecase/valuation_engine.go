package usecase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	applogger "PortDelta/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultFetchTimeout = 8 * time.Second
	DefaultConcurrency  = 4
)

// ValuationEngine computes the day-over-day change of a fixed portfolio.
// Evaluate must not be called concurrently; the Scheduler serialises rounds.
type ValuationEngine struct {
	portfolio    models.Portfolio
	calendar     drepo.TradingCalendar
	prices       drepo.PriceSource
	cache        drepo.PriceCache
	fetchTimeout time.Duration
	concurrency  int
	strict       bool
	metrics      drepo.Metrics
	logger       *applogger.Logger
	newID        func() string
	clock        func() time.Time
}

type EngineOption func(*ValuationEngine)

// WithFetchTimeout bounds every single PriceSource call.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *ValuationEngine) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

// WithConcurrency sets how many holdings are priced at once.
func WithConcurrency(n int) EngineOption {
	return func(e *ValuationEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithStrictReferenceDates makes the pre-close path ignore cached closes
// older than the previous trading day.
func WithStrictReferenceDates(strict bool) EngineOption {
	return func(e *ValuationEngine) { e.strict = strict }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) EngineOption {
	return func(e *ValuationEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *applogger.Logger) EngineOption {
	return func(e *ValuationEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the wall clock that decides whether a round's instant
// lies on an earlier day than today.
func WithClock(now func() time.Time) EngineOption {
	return func(e *ValuationEngine) {
		if now != nil {
			e.clock = now
		}
	}
}

// NewValuationEngine creates an engine for a fixed portfolio.
func NewValuationEngine(
	portfolio models.Portfolio,
	cal drepo.TradingCalendar,
	prices drepo.PriceSource,
	cache drepo.PriceCache,
	opts ...EngineOption,
) *ValuationEngine {
	e := &ValuationEngine{
		portfolio:    portfolio,
		calendar:     cal,
		prices:       prices,
		cache:        cache,
		fetchTimeout: DefaultFetchTimeout,
		concurrency:  DefaultConcurrency,
		metrics:      drepo.NoopMetrics{},
		logger:       applogger.Nop(),
		newID:        uuid.NewString,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Portfolio returns the holdings being valued.
func (e *ValuationEngine) Portfolio() models.Portfolio { return e.portfolio }

// ClearCache drops every cached close.
func (e *ValuationEngine) ClearCache(ctx context.Context) error {
	return e.cache.Clear(ctx)
}

// roundPlan is everything the calendar decided for one round.
type roundPlan struct {
	phase models.Phase
	// closeDay is the date whose official close is fetched on a reference miss.
	closeDay models.Date
	// quoteDay is set when the market is closed or the round is evaluated
	// for an earlier day: the current price is the last extended-hours
	// sample of that day instead of the latest trade.
	quoteDay models.Date
	// cached holds pre-close cache hits.
	cached map[string]models.CachedClose
}

type sidePrice struct {
	price decimal.Decimal
	asOf  models.Date
	err   error
	// fetched is set when price came from DailyClose and must be cached.
	fetched bool
}

type holdingPrices struct {
	ref, cur sidePrice
}

// Evaluate runs one valuation round at now. The only error it returns
// matches models.ErrCalendarUnresolvable; price failures are reported in
// the result.
func (e *ValuationEngine) Evaluate(ctx context.Context, now time.Time) (*models.ValuationResult, error) {
	start := time.Now()

	plan, err := e.plan(ctx, now)
	if err != nil {
		e.metrics.RecordError("calendar_unresolvable")
		e.logger.Error("valuation round aborted", applogger.Time("now", now), applogger.Error(err))
		return nil, err
	}

	prices := e.fetchAll(ctx, plan)
	result := e.apply(ctx, now, plan, prices)

	e.metrics.RecordValuation(result)
	e.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	e.logger.Info("valuation round",
		applogger.String("round_id", result.RoundID),
		applogger.String("phase", string(result.Phase)),
		applogger.Stringer("reference_date", result.ReferenceDate),
		applogger.Decimal("reference_total", result.ReferenceTotal),
		applogger.Decimal("current_total", result.CurrentTotal),
		applogger.Decimal("delta", result.Delta),
		applogger.Strings("failed", result.FailedSymbols()),
		applogger.Duration("took", time.Since(start)),
	)
	return result, nil
}

// plan classifies now and resolves every calendar question the round
// needs. It reads the cache but never writes it, so an abort here leaves
// no partial state.
func (e *ValuationEngine) plan(ctx context.Context, now time.Time) (roundPlan, error) {
	loc := e.calendar.Location()
	today := models.DateOf(now, loc)
	// A live quote only describes the wall-clock day.
	var pastDay models.Date
	if today.Before(models.DateOf(e.clock(), loc)) {
		pastDay = today
	}

	session, err := e.calendar.SessionFor(ctx, today)
	if err != nil {
		return roundPlan{}, unresolvable(err)
	}

	if session == nil {
		prev, err := e.calendar.PreviousTradingDay(ctx, today)
		if err != nil {
			return roundPlan{}, unresolvable(err)
		}
		prevSession, err := e.calendar.SessionFor(ctx, prev)
		if err != nil {
			return roundPlan{}, unresolvable(err)
		}
		if prevSession == nil {
			return roundPlan{}, unresolvable(fmt.Errorf("%s has no session", prev))
		}
		return roundPlan{phase: models.PhaseMarketClosed, closeDay: prev, quoteDay: prev}, nil
	}

	if session.ClosedAt(now) {
		return roundPlan{phase: models.PhasePostClose, closeDay: today, quoteDay: pastDay}, nil
	}

	p := roundPlan{
		phase:    models.PhasePreClose,
		quoteDay: pastDay,
		cached:   make(map[string]models.CachedClose, len(e.portfolio)),
	}
	miss := false
	for _, h := range e.portfolio {
		cc, ok, err := e.cache.Get(ctx, h.Symbol)
		if err != nil {
			e.metrics.RecordError("cache_get")
			e.logger.Warn("price cache read failed, treating as miss",
				applogger.String("symbol", h.Symbol), applogger.Error(err))
		}
		if ok && err == nil {
			p.cached[h.Symbol] = cc
		} else {
			miss = true
		}
	}
	if !miss && !e.strict {
		return p, nil
	}

	prev, err := e.calendar.PreviousTradingDay(ctx, today)
	if err != nil {
		return roundPlan{}, unresolvable(err)
	}
	p.closeDay = prev
	if e.strict {
		for sym, cc := range p.cached {
			if cc.AsOf.Before(prev) {
				delete(p.cached, sym)
			}
		}
	}
	return p, nil
}

func (e *ValuationEngine) fetchAll(ctx context.Context, plan roundPlan) []holdingPrices {
	out := make([]holdingPrices, len(e.portfolio))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i, h := range e.portfolio {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = e.fetchHolding(ctx, plan, sym)
		}(i, h.Symbol)
	}
	wg.Wait()
	return out
}

func (e *ValuationEngine) fetchHolding(ctx context.Context, plan roundPlan, sym string) holdingPrices {
	var hp holdingPrices

	if cc, ok := plan.cached[sym]; ok {
		hp.ref = sidePrice{price: cc.Price, asOf: cc.AsOf}
	} else {
		px, err := e.call(ctx, sym, func(c context.Context) (decimal.Decimal, error) {
			return e.prices.DailyClose(c, sym, plan.closeDay)
		})
		hp.ref = sidePrice{price: px, asOf: plan.closeDay, err: err, fetched: err == nil}
	}

	px, err := e.call(ctx, sym, func(c context.Context) (decimal.Decimal, error) {
		if !plan.quoteDay.IsZero() {
			return e.prices.ExtendedQuoteOn(c, sym, plan.quoteDay)
		}
		return e.prices.LatestExtendedQuote(c, sym)
	})
	hp.cur = sidePrice{price: px, err: err}
	return hp
}

// call runs one PriceSource request under the fetch timeout.
func (e *ValuationEngine) call(ctx context.Context, sym string, fn func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	c, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	px, err := fn(c)
	var netErr net.Error
	switch {
	case err != nil && ctx.Err() == nil &&
		(errors.Is(c.Err(), context.DeadlineExceeded) || errors.As(err, &netErr) && netErr.Timeout()):
		return decimal.Zero, fmt.Errorf("%w after %s: %v", models.ErrDataSourceTimeout, e.fetchTimeout, err)
	case err != nil:
		return decimal.Zero, err
	case !px.IsPositive():
		return decimal.Zero, models.PriceUnavailable(sym, "source returned %s", px)
	}
	return px, nil
}

// apply accumulates totals in portfolio order and writes fetched closes to the cache.
func (e *ValuationEngine) apply(ctx context.Context, now time.Time, plan roundPlan, prices []holdingPrices) *models.ValuationResult {
	r := &models.ValuationResult{
		RoundID:         e.newID(),
		EvaluatedAt:     now,
		Phase:           plan.phase,
		ReferenceDate:   plan.closeDay,
		ReferenceTotal:  decimal.Zero,
		CurrentTotal:    decimal.Zero,
		Holdings:        make([]models.HoldingValuation, 0, len(e.portfolio)),
		PerSymbolErrors: make(map[string][]*models.PriceError),
	}

	for i, h := range e.portfolio {
		hp := prices[i]
		hv := models.HoldingValuation{Symbol: h.Symbol, Shares: h.Shares}

		if hp.ref.err == nil {
			hv.Reference = decimal.NewNullDecimal(hp.ref.price)
			hv.ReferenceAsOf = hp.ref.asOf
			r.ReferenceTotal = r.ReferenceTotal.Add(hv.ReferenceValue())
			if r.ReferenceDate.IsZero() || hp.ref.asOf.After(r.ReferenceDate) {
				r.ReferenceDate = hp.ref.asOf
			}
			if hp.ref.fetched {
				e.remember(ctx, h.Symbol, hp.ref)
			}
		} else {
			e.fail(r, h.Symbol, models.SideReference, hp.ref.err)
		}

		if hp.cur.err == nil {
			hv.Current = decimal.NewNullDecimal(hp.cur.price)
			r.CurrentTotal = r.CurrentTotal.Add(hv.CurrentValue())
			e.metrics.RecordLastPrice(h.Symbol, hp.cur.price.InexactFloat64())
		} else {
			e.fail(r, h.Symbol, models.SideCurrent, hp.cur.err)
		}

		r.Holdings = append(r.Holdings, hv)
	}

	r.Delta = r.CurrentTotal.Sub(r.ReferenceTotal)
	return r
}

func (e *ValuationEngine) remember(ctx context.Context, sym string, p sidePrice) {
	if err := e.cache.Put(ctx, sym, models.CachedClose{Price: p.price, AsOf: p.asOf}); err != nil {
		e.metrics.RecordError("cache_put")
		e.logger.Warn("price cache write failed", applogger.String("symbol", sym), applogger.Error(err))
	}
}

func (e *ValuationEngine) fail(r *models.ValuationResult, sym string, side models.Side, err error) {
	pe := models.NewPriceError(sym, side, err)
	r.PerSymbolErrors[sym] = append(r.PerSymbolErrors[sym], pe)
	e.metrics.RecordPriceError(side)
	e.logger.Warn("price unavailable",
		applogger.String("symbol", sym),
		applogger.String("side", string(side)),
		applogger.Bool("timeout", pe.Timeout()),
		applogger.Error(err),
	)
}

func unresolvable(cause error) error {
	return fmt.Errorf("%w: %w", models.ErrCalendarUnresolvable, cause)
}
