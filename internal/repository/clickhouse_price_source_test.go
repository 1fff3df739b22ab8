package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"PortDelta/internal/domain/models"
	"PortDelta/internal/service/calendar"
	pkgch "PortDelta/pkg/clickhouse"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct{ from, to time.Time }

type fakeTicks struct {
	trade *models.Trade
	err   error
	asked []window
}

func (f *fakeTicks) Store(context.Context, *models.Trade) error        { return nil }
func (f *fakeTicks) StoreBatch(context.Context, []*models.Trade) error { return nil }
func (f *fakeTicks) Health(context.Context) error                      { return nil }
func (f *fakeTicks) Close() error                                      { return nil }

func (f *fakeTicks) LastBetween(_ context.Context, _ string, from, to time.Time) (*models.Trade, error) {
	f.asked = append(f.asked, window{from, to})
	return f.trade, f.err
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestCHPriceSourceWindows(t *testing.T) {
	loc := newYork(t)
	ticks := &fakeTicks{trade: &models.Trade{Symbol: "AAPL", Price: decimal.RequireFromString("185.85")}}
	src := NewCHPriceSource(ticks, calendar.New(calendar.NewNYSERules(loc)))
	ctx := context.Background()

	px, err := src.DailyClose(ctx, "AAPL", models.MustParseDate("2024-11-29"))
	require.NoError(t, err)
	assert.Equal(t, "185.85", px.String())
	require.Len(t, ticks.asked, 1)
	assert.Equal(t, time.Date(2024, 11, 29, 13, 0, 0, 0, loc), ticks.asked[0].to, "early close")

	_, err = src.ExtendedQuoteOn(ctx, "AAPL", models.MustParseDate("2024-11-29"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 29, 4, 0, 0, 0, loc), ticks.asked[1].from)
	assert.Equal(t, time.Date(2024, 11, 29, 20, 0, 0, 0, loc), ticks.asked[1].to)

	now := time.Date(2024, 11, 30, 12, 0, 0, 0, loc)
	src.now = func() time.Time { return now }
	_, err = src.LatestExtendedQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, now, ticks.asked[2].to)
}

func TestCHPriceSourceMissing(t *testing.T) {
	ticks := &fakeTicks{}
	src := NewCHPriceSource(ticks, calendar.New(calendar.NewNYSERules(newYork(t))))
	ctx := context.Background()

	_, err := src.DailyClose(ctx, "AAPL", models.MustParseDate("2024-11-28"))
	assert.ErrorIs(t, err, models.ErrPriceUnavailable, "holiday")
	assert.Empty(t, ticks.asked)

	_, err = src.DailyClose(ctx, "AAPL", models.MustParseDate("2024-11-27"))
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)

	ticks.err = errors.New("connection refused")
	_, err = src.LatestExtendedQuote(ctx, "AAPL")
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, models.ErrPriceUnavailable)
}

// Runs against a real server when CLICKHOUSE_ADDR (host) is set.
func TestCHTickStorageIntegration(t *testing.T) {
	host := os.Getenv("CLICKHOUSE_ADDR")
	if host == "" {
		t.Skip("CLICKHOUSE_ADDR not set")
	}
	ctx := context.Background()
	ch, err := pkgch.NewClient(ctx, pkgch.WithAddr(host, 0), pkgch.WithDatabase("portdelta_test"))
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.InitSchema(ctx, TickSchema("portdelta_test")))

	store := NewCHTickStorage(ch, nil)
	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.StoreBatch(ctx, []*models.Trade{
		{Symbol: "ZZTEST", Price: decimal.RequireFromString("10.5"), Volume: decimal.NewFromInt(1), Timestamp: at.Add(-time.Second)},
		{Symbol: "ZZTEST", Price: decimal.RequireFromString("10.75"), Volume: decimal.NewFromInt(2), Timestamp: at},
	}))

	got, err := store.LastBetween(ctx, "ZZTEST", at.Add(-time.Minute), at)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.75", got.Price.String())

	none, err := store.LastBetween(ctx, "NOPE", at.Add(-time.Minute), at)
	require.NoError(t, err)
	assert.Nil(t, none)
}
