// Package alpaca adapts the Alpaca trading and market data APIs to the
// session and price interfaces.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	applogger "PortDelta/pkg/logger"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

type calendarAPI interface {
	GetCalendar(req alpacaapi.GetCalendarRequest) ([]alpacaapi.CalendarDay, error)
}

type marketDataAPI interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// Client serves exchange sessions and prices from Alpaca.
type Client struct {
	trading calendarAPI
	data    marketDataAPI
	loc     *time.Location
	feed    marketdata.Feed
	logger  *applogger.Logger
}

var (
	_ drepo.SessionSource = (*Client)(nil)
	_ drepo.PriceSource   = (*Client)(nil)
)

type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
	Feed      string
	Timeout   time.Duration
}

type Option func(*Client)

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds SDK clients from cfg. loc is the exchange location used to
// interpret calendar days and bar timestamps.
func New(cfg Config, loc *time.Location, opts ...Option) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	trading := alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
	})
	data := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		BaseURL:    cfg.DataURL,
		HTTPClient: httpClient,
	})
	return newClient(trading, data, loc, cfg.Feed, opts...)
}

func newClient(trading calendarAPI, data marketDataAPI, loc *time.Location, feed string, opts ...Option) *Client {
	if feed == "" {
		feed = marketdata.IEX
	}
	c := &Client{
		trading: trading,
		data:    data,
		loc:     loc,
		feed:    feed,
		logger:  applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Location() *time.Location { return c.loc }

// Sessions lists trading days in [from, to] from the Alpaca calendar.
func (c *Client) Sessions(ctx context.Context, from, to models.Date) ([]models.TradingSession, error) {
	days, err := call(ctx, func() ([]alpacaapi.CalendarDay, error) {
		return c.trading.GetCalendar(alpacaapi.GetCalendarRequest{
			Start: from.Midnight(c.loc),
			End:   to.Midnight(c.loc),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca calendar: %w", err)
	}

	out := make([]models.TradingSession, 0, len(days))
	for _, d := range days {
		s, err := parseCalendarDay(d, c.loc)
		if err != nil {
			return nil, err
		}
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// DailyClose returns the raw (unadjusted) close of the daily bar for day.
func (c *Client) DailyClose(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error) {
	bars, err := call(ctx, func() ([]marketdata.Bar, error) {
		return c.data.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Adjustment: marketdata.Raw,
			Start:      day.Midnight(c.loc),
			End:        day.Add(1).Midnight(c.loc),
			Feed:       c.feed,
		})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca daily bar %s %s: %w", symbol, day, err)
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if models.DateOf(bars[i].Timestamp, c.loc) == day {
			return decimal.NewFromFloat(bars[i].Close), nil
		}
	}
	return decimal.Zero, models.PriceUnavailable(symbol, "no daily bar for %s", day)
}

// ExtendedQuoteOn returns the close of the last minute bar between 04:00 and 20:00 on day.
func (c *Client) ExtendedQuoteOn(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error) {
	start, end := day.At(4, 0, c.loc), day.At(20, 0, c.loc)
	bars, err := call(ctx, func() ([]marketdata.Bar, error) {
		return c.data.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneMin,
			Adjustment: marketdata.Raw,
			Start:      start,
			End:        end,
			Feed:       c.feed,
		})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca minute bars %s %s: %w", symbol, day, err)
	}
	b, ok := lastBarBefore(bars, end)
	if !ok {
		return decimal.Zero, models.PriceUnavailable(symbol, "no minute bars on %s", day)
	}
	return decimal.NewFromFloat(b.Close), nil
}

// LatestExtendedQuote returns the latest trade, which includes extended hours.
func (c *Client) LatestExtendedQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	tr, err := call(ctx, func() (*marketdata.Trade, error) {
		return c.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: c.feed})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca latest trade %s: %w", symbol, err)
	}
	if tr == nil || tr.Price <= 0 {
		return decimal.Zero, models.PriceUnavailable(symbol, "no latest trade")
	}
	c.logger.Debug("alpaca latest trade",
		applogger.String("symbol", symbol),
		applogger.Time("at", tr.Timestamp),
	)
	return decimal.NewFromFloat(tr.Price), nil
}

func parseCalendarDay(d alpacaapi.CalendarDay, loc *time.Location) (models.TradingSession, error) {
	date, err := models.ParseDate(d.Date)
	if err != nil {
		return models.TradingSession{}, fmt.Errorf("alpaca calendar day: %w", err)
	}
	oh, om, err := clock(d.Open)
	if err != nil {
		return models.TradingSession{}, fmt.Errorf("alpaca calendar %s open: %w", d.Date, err)
	}
	ch, cm, err := clock(d.Close)
	if err != nil {
		return models.TradingSession{}, fmt.Errorf("alpaca calendar %s close: %w", d.Date, err)
	}
	return models.TradingSession{
		Date:  date,
		Open:  date.At(oh, om, loc),
		Close: date.At(ch, cm, loc),
	}, nil
}

// clock parses "HH:MM" as returned by the calendar endpoint.
func clock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// lastBarBefore returns the latest bar starting before end.
func lastBarBefore(bars []marketdata.Bar, end time.Time) (marketdata.Bar, bool) {
	var (
		best  marketdata.Bar
		found bool
	)
	for _, b := range bars {
		if !b.Timestamp.Before(end) {
			continue
		}
		if !found || b.Timestamp.After(best.Timestamp) {
			best, found = b, true
		}
	}
	return best, found
}

// call runs a context-free SDK request and gives up when ctx is done.
// The request itself is bounded by the HTTP client timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
