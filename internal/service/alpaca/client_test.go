package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"PortDelta/internal/domain/models"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	days []alpacaapi.CalendarDay
	req  alpacaapi.GetCalendarRequest
}

func (f *fakeCalendar) GetCalendar(req alpacaapi.GetCalendarRequest) ([]alpacaapi.CalendarDay, error) {
	f.req = req
	return f.days, nil
}

type fakeData struct {
	bars    []marketdata.Bar
	trade   *marketdata.Trade
	err     error
	lastReq marketdata.GetBarsRequest
	block   chan struct{}
}

func (f *fakeData) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.lastReq = req
	if f.block != nil {
		<-f.block
	}
	return f.bars, f.err
}

func (f *fakeData) GetLatestTrade(string, marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	return f.trade, f.err
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestSessionsParsesCalendarDays(t *testing.T) {
	loc := newYork(t)
	cal := &fakeCalendar{days: []alpacaapi.CalendarDay{
		{Date: "2024-11-27", Open: "09:30", Close: "16:00"},
		{Date: "2024-11-29", Open: "09:30", Close: "13:00"},
	}}
	c := newClient(cal, &fakeData{}, loc, "")

	got, err := c.Sessions(context.Background(), models.MustParseDate("2024-11-27"), models.MustParseDate("2024-11-30"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, 11, 29, 13, 0, 0, 0, loc), got[1].Close)
	assert.Equal(t, time.Date(2024, 11, 27, 0, 0, 0, 0, loc), cal.req.Start)
}

func TestSessionsRejectsBadClock(t *testing.T) {
	cal := &fakeCalendar{days: []alpacaapi.CalendarDay{{Date: "2024-11-27", Open: "9h30", Close: "16:00"}}}
	c := newClient(cal, &fakeData{}, time.UTC, "")
	_, err := c.Sessions(context.Background(), models.MustParseDate("2024-11-27"), models.MustParseDate("2024-11-27"))
	assert.Error(t, err)
}

func TestDailyCloseMatchesBarDate(t *testing.T) {
	loc := newYork(t)
	data := &fakeData{bars: []marketdata.Bar{
		{Timestamp: time.Date(2024, 2, 2, 5, 0, 0, 0, time.UTC), Close: 185.85},
	}}
	c := newClient(&fakeCalendar{}, data, loc, "sip")

	px, err := c.DailyClose(context.Background(), "AAPL", models.MustParseDate("2024-02-02"))
	require.NoError(t, err)
	assert.Equal(t, "185.85", px.String())
	assert.Equal(t, marketdata.Raw, data.lastReq.Adjustment)
	assert.Equal(t, "sip", data.lastReq.Feed)

	_, err = c.DailyClose(context.Background(), "AAPL", models.MustParseDate("2024-02-05"))
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)
}

func TestExtendedQuoteOnTakesLastBar(t *testing.T) {
	loc := newYork(t)
	data := &fakeData{bars: []marketdata.Bar{
		{Timestamp: time.Date(2024, 2, 2, 19, 58, 0, 0, loc), Close: 186.10},
		{Timestamp: time.Date(2024, 2, 2, 19, 59, 0, 0, loc), Close: 186.25},
		{Timestamp: time.Date(2024, 2, 2, 9, 30, 0, 0, loc), Close: 183.00},
	}}
	c := newClient(&fakeCalendar{}, data, loc, "")

	px, err := c.ExtendedQuoteOn(context.Background(), "AAPL", models.MustParseDate("2024-02-02"))
	require.NoError(t, err)
	assert.Equal(t, "186.25", px.String())
	assert.Equal(t, time.Date(2024, 2, 2, 4, 0, 0, 0, loc), data.lastReq.Start)
	assert.Equal(t, marketdata.IEX, data.lastReq.Feed)

	data.bars = nil
	_, err = c.ExtendedQuoteOn(context.Background(), "AAPL", models.MustParseDate("2024-02-02"))
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)
}

func TestLatestExtendedQuote(t *testing.T) {
	data := &fakeData{trade: &marketdata.Trade{Price: 187.5, Timestamp: time.Now()}}
	c := newClient(&fakeCalendar{}, data, time.UTC, "")

	px, err := c.LatestExtendedQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "187.5", px.String())

	data.trade = nil
	_, err = c.LatestExtendedQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)

	data.err = errors.New("403 forbidden")
	_, err = c.LatestExtendedQuote(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "forbidden")
}

func TestCallHonoursContext(t *testing.T) {
	data := &fakeData{block: make(chan struct{})}
	defer close(data.block)
	c := newClient(&fakeCalendar{}, data, time.UTC, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.DailyClose(ctx, "AAPL", models.MustParseDate("2024-02-02"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
