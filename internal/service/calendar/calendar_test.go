package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"PortDelta/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

type countingSource struct {
	inner *NYSERules
	calls int
	err   error
}

func (s *countingSource) Sessions(ctx context.Context, from, to models.Date) ([]models.TradingSession, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.inner.Sessions(ctx, from, to)
}

func (s *countingSource) Location() *time.Location { return s.inner.Location() }

type emptySource struct{ loc *time.Location }

func (e emptySource) Sessions(context.Context, models.Date, models.Date) ([]models.TradingSession, error) {
	return nil, nil
}

func (e emptySource) Location() *time.Location { return e.loc }

func TestNYSEHolidays(t *testing.T) {
	closed := []string{
		"2024-01-01", // New Year
		"2024-01-15", // MLK
		"2024-02-19", // Presidents
		"2024-03-29", // Good Friday
		"2024-05-27", // Memorial
		"2024-06-19", // Juneteenth
		"2024-07-04",
		"2024-09-02", // Labor
		"2024-11-28", // Thanksgiving
		"2024-12-25",
		"2021-12-24", // Christmas on Saturday, observed Friday
		"2023-01-02", // New Year on Sunday, observed Monday
		"2026-07-03", // July 4 on Saturday
		"2025-04-18", // Good Friday
	}
	for _, s := range closed {
		assert.True(t, IsHoliday(models.MustParseDate(s)), s)
	}

	open := []string{
		"2021-12-31", // New Year 2022 fell on Saturday: no observance
		"2021-06-18", // Juneteenth before it became an exchange holiday
		"2024-02-02",
	}
	for _, s := range open {
		assert.False(t, IsHoliday(models.MustParseDate(s)), s)
	}
}

func TestNYSESessionsEarlyCloseAndWeekend(t *testing.T) {
	loc := newYork(t)
	r := NewNYSERules(loc)

	sessions, err := r.Sessions(context.Background(), models.MustParseDate("2024-11-28"), models.MustParseDate("2024-12-02"))
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Black Friday closes at 13:00, Thanksgiving and the weekend are skipped.
	assert.Equal(t, models.MustParseDate("2024-11-29"), sessions[0].Date)
	assert.Equal(t, time.Date(2024, 11, 29, 13, 0, 0, 0, loc), sessions[0].Close)
	assert.Equal(t, models.MustParseDate("2024-12-02"), sessions[1].Date)
	assert.Equal(t, time.Date(2024, 12, 2, 9, 30, 0, 0, loc), sessions[1].Open)
	assert.Equal(t, time.Date(2024, 12, 2, 16, 0, 0, 0, loc), sessions[1].Close)

	jul3, err := r.Sessions(context.Background(), models.MustParseDate("2023-07-03"), models.MustParseDate("2023-07-03"))
	require.NoError(t, err)
	require.Len(t, jul3, 1)
	assert.Equal(t, 13, jul3[0].Close.Hour())
}

func TestNYSEExtraHolidays(t *testing.T) {
	r := NewNYSERules(newYork(t), WithExtraHolidays(models.MustParseDate("2025-01-09")))
	sessions, err := r.Sessions(context.Background(), models.MustParseDate("2025-01-09"), models.MustParseDate("2025-01-10"))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.MustParseDate("2025-01-10"), sessions[0].Date)
}

func TestCalendarSessionFor(t *testing.T) {
	cal := New(NewNYSERules(newYork(t)))
	ctx := context.Background()

	s, err := cal.SessionFor(ctx, models.MustParseDate("2024-02-03"))
	require.NoError(t, err)
	assert.Nil(t, s, "saturday has no session")

	s, err = cal.SessionFor(ctx, models.MustParseDate("2024-02-02"))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 16, s.Close.Hour())
}

func TestPreviousTradingDaySkipsWeekendAndHoliday(t *testing.T) {
	cal := New(NewNYSERules(newYork(t)))
	ctx := context.Background()

	cases := map[string]string{
		"2024-02-03": "2024-02-02", // Saturday
		"2024-02-05": "2024-02-02", // Monday
		"2024-02-20": "2024-02-16", // Tuesday after Presidents Day
		"2024-04-01": "2024-03-28", // Monday after Good Friday
	}
	for in, want := range cases {
		got, err := cal.PreviousTradingDay(ctx, models.MustParseDate(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
}

func TestPreviousTradingDayIsBounded(t *testing.T) {
	cal := New(emptySource{loc: time.UTC}, WithMaxLookback(5))
	_, err := cal.PreviousTradingDay(context.Background(), models.MustParseDate("2024-02-03"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoTradingDayFound))
}

func TestCalendarMemoizesWindow(t *testing.T) {
	src := &countingSource{inner: NewNYSERules(newYork(t))}
	cal := New(src)
	ctx := context.Background()

	_, err := cal.SessionFor(ctx, models.MustParseDate("2024-02-05"))
	require.NoError(t, err)
	prev, err := cal.PreviousTradingDay(ctx, models.MustParseDate("2024-02-05"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-02", prev.String())
	assert.Equal(t, 1, src.calls)

	cal.Reset()
	_, err = cal.SessionFor(ctx, models.MustParseDate("2024-02-05"))
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCalendarPropagatesSourceErrors(t *testing.T) {
	src := &countingSource{inner: NewNYSERules(time.UTC), err: errors.New("upstream down")}
	cal := New(src)
	_, err := cal.SessionFor(context.Background(), models.MustParseDate("2024-02-05"))
	assert.Error(t, err)
	_, err = cal.PreviousTradingDay(context.Background(), models.MustParseDate("2024-02-05"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNoTradingDayFound))
}
