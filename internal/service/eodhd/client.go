// Package eodhd reads daily closes and extended-hours quotes from the EODHD API.
package eodhd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	xhttp "PortDelta/pkg/http"
	applogger "PortDelta/pkg/logger"
	"PortDelta/pkg/util"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultExchange  = "US"
	DefaultRateLimit = 10
)

// flexDecimal accepts numbers, numeric strings and the "NA" placeholder.
type flexDecimal struct {
	decimal.Decimal
	Valid bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "", "null", "NA", "N/A":
		*f = flexDecimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("eodhd: cannot read %s as a number", data)
	}
	*f = flexDecimal{Decimal: d, Valid: true}
	return nil
}

type eodBar struct {
	Date  string      `json:"date"`
	Close flexDecimal `json:"close"`
}

type intradayBar struct {
	Timestamp int64       `json:"timestamp"`
	Datetime  string      `json:"datetime"`
	Close     flexDecimal `json:"close"`
}

type realTimeQuote struct {
	Code  string      `json:"code"`
	Close flexDecimal `json:"close"`
}

// APIError is a non-2xx answer from EODHD.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eodhd api error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Client implements drepo.PriceSource against EODHD.
type Client struct {
	http     *xhttp.Client
	apiKey   string
	exchange string
	loc      *time.Location
	limiter  *rate.Limiter
	logger   *applogger.Logger
}

var _ drepo.PriceSource = (*Client)(nil)

type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL   string
	exchange  string
	rateLimit int
	timeout   time.Duration
	logger    *applogger.Logger
}

func WithBaseURL(u string) ClientOption   { return func(c *clientConfig) { c.baseURL = u } }
func WithExchange(ex string) ClientOption { return func(c *clientConfig) { c.exchange = ex } }

// WithRateLimit sets requests per second; the burst equals the rate.
func WithRateLimit(rps int) ClientOption {
	return func(c *clientConfig) {
		if rps > 0 {
			c.rateLimit = rps
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

func WithLogger(l *applogger.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// NewClient creates a client. loc is the exchange location used for
// the intraday window and zone-less timestamps.
func NewClient(apiKey string, loc *time.Location, opts ...ClientOption) *Client {
	cfg := clientConfig{
		baseURL:   DefaultBaseURL,
		exchange:  DefaultExchange,
		rateLimit: DefaultRateLimit,
		timeout:   10 * time.Second,
		logger:    applogger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		http:     xhttp.NewClient(xhttp.WithBaseURL(cfg.baseURL), xhttp.WithTimeout(cfg.timeout)),
		apiKey:   apiKey,
		exchange: cfg.exchange,
		loc:      loc,
		limiter:  rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateLimit),
		logger:   cfg.logger,
	}
}

// DailyClose returns the close of the end-of-day bar dated day.
func (c *Client) DailyClose(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error) {
	var bars []eodBar
	params := map[string][]string{
		"period": {"d"},
		"from":   {day.String()},
		"to":     {day.String()},
	}
	if err := c.get(ctx, "/eod/"+c.ticker(symbol), params, &bars); err != nil {
		return decimal.Zero, c.mapErr(symbol, err)
	}
	for _, b := range bars {
		if b.Date == day.String() && b.Close.Valid {
			return b.Close.Decimal, nil
		}
	}
	return decimal.Zero, models.PriceUnavailable(symbol, "no eod bar for %s", day)
}

// ExtendedQuoteOn returns the last one-minute close between 04:00 and 20:00 on day.
func (c *Client) ExtendedQuoteOn(ctx context.Context, symbol string, day models.Date) (decimal.Decimal, error) {
	start, end := day.At(4, 0, c.loc), day.At(20, 0, c.loc)
	var bars []intradayBar
	params := map[string][]string{
		"interval": {"1m"},
		"from":     {strconv.FormatInt(start.Unix(), 10)},
		"to":       {strconv.FormatInt(end.Unix(), 10)},
	}
	if err := c.get(ctx, "/intraday/"+c.ticker(symbol), params, &bars); err != nil {
		return decimal.Zero, c.mapErr(symbol, err)
	}

	var (
		last  time.Time
		price decimal.Decimal
		found bool
	)
	for _, b := range bars {
		if !b.Close.Valid {
			continue
		}
		at := c.barTime(b)
		if at.IsZero() || at.Before(start) || !at.Before(end) {
			continue
		}
		if !found || at.After(last) {
			last, price, found = at, b.Close.Decimal, true
		}
	}
	if !found {
		return decimal.Zero, models.PriceUnavailable(symbol, "no intraday bars on %s", day)
	}
	return price, nil
}

// LatestExtendedQuote reads the real-time endpoint, which follows extended-hours trading.
func (c *Client) LatestExtendedQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var q realTimeQuote
	if err := c.get(ctx, "/real-time/"+c.ticker(symbol), nil, &q); err != nil {
		return decimal.Zero, c.mapErr(symbol, err)
	}
	if !q.Close.Valid || !q.Close.IsPositive() {
		return decimal.Zero, models.PriceUnavailable(symbol, "no real-time quote")
	}
	return q.Close.Decimal, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if params == nil {
		params = map[string][]string{}
	}
	params["api_token"] = []string{c.apiKey}
	params["fmt"] = []string{"json"}

	c.logger.Debug("eodhd request", applogger.String("path", path))
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         path,
		QueryParams: params,
	}, dest)

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return &APIError{StatusCode: se.Status, Message: se.Body, Endpoint: path}
	}
	return err
}

// mapErr reports unknown tickers as missing prices and keeps everything else.
func (c *Client) mapErr(symbol string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return models.PriceUnavailable(symbol, "%s", apiErr.Message)
	}
	return fmt.Errorf("eodhd %s: %w", symbol, err)
}

func (c *Client) ticker(symbol string) string {
	s := util.NormalizeSymbol(symbol)
	if c.exchange == "" || strings.HasSuffix(s, "."+c.exchange) {
		return s
	}
	// Class shares use a dash on EODHD: BRK.B -> BRK-B.US
	return strings.ReplaceAll(s, ".", "-") + "." + c.exchange
}

func (c *Client) barTime(b intradayBar) time.Time {
	if b.Timestamp > 0 {
		return time.Unix(b.Timestamp, 0).In(c.loc)
	}
	// datetime is reported in UTC
	t, ok := util.ParseTimeIn(b.Datetime, time.UTC)
	if !ok {
		return time.Time{}
	}
	return t.In(c.loc)
}
