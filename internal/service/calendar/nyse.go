package calendar

import (
	"context"
	"fmt"
	"time"

	"PortDelta/internal/domain/models"
)

// NYSERules computes NYSE sessions from the published holiday rules.
// It needs no network access and is the default session source.
type NYSERules struct {
	loc   *time.Location
	extra map[models.Date]struct{}
}

// NYSEOption configures NYSERules.
type NYSEOption func(*NYSERules)

// WithExtraHolidays adds unscheduled closures such as national days of mourning.
func WithExtraHolidays(days ...models.Date) NYSEOption {
	return func(r *NYSERules) {
		for _, d := range days {
			r.extra[d] = struct{}{}
		}
	}
}

func NewNYSERules(loc *time.Location, opts ...NYSEOption) *NYSERules {
	r := &NYSERules{loc: loc, extra: make(map[models.Date]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *NYSERules) Location() *time.Location { return r.loc }

// Sessions lists trading sessions in [from, to].
func (r *NYSERules) Sessions(ctx context.Context, from, to models.Date) ([]models.TradingSession, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("nyse sessions: %s is before %s", to, from)
	}
	var out []models.TradingSession
	for d := from; !d.After(to); d = d.Add(1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.trades(d) {
			continue
		}
		closeH, closeM := 16, 0
		if isEarlyClose(d) {
			closeH = 13
		}
		out = append(out, models.TradingSession{
			Date:  d,
			Open:  d.At(9, 30, r.loc),
			Close: d.At(closeH, closeM, r.loc),
		})
	}
	return out, nil
}

func (r *NYSERules) trades(d models.Date) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, closed := r.extra[d]; closed {
		return false
	}
	return !IsHoliday(d)
}

// IsHoliday reports whether d is a full-day NYSE holiday.
func IsHoliday(d models.Date) bool {
	for _, h := range holidays(d.Year()) {
		if h == d {
			return true
		}
	}
	return false
}

func holidays(y int) []models.Date {
	hs := []models.Date{
		newYearObserved(y),
		nthWeekday(y, time.January, time.Monday, 3),
		nthWeekday(y, time.February, time.Monday, 3),
		easter(y).Add(-2),
		lastWeekday(y, time.May, time.Monday),
		observed(models.NewDate(y, time.July, 4)),
		nthWeekday(y, time.September, time.Monday, 1),
		nthWeekday(y, time.November, time.Thursday, 4),
		observed(models.NewDate(y, time.December, 25)),
	}
	if y >= 2022 {
		hs = append(hs, observed(models.NewDate(y, time.June, 19)))
	}
	return hs
}

// newYearObserved moves a Sunday holiday to Monday. A Saturday New Year is not observed.
func newYearObserved(y int) models.Date {
	d := models.NewDate(y, time.January, 1)
	if d.Weekday() == time.Sunday {
		return d.Add(1)
	}
	return d
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d models.Date) models.Date {
	switch d.Weekday() {
	case time.Saturday:
		return d.Add(-1)
	case time.Sunday:
		return d.Add(1)
	}
	return d
}

func isEarlyClose(d models.Date) bool {
	wd := d.Weekday()
	switch {
	case d.Month() == time.July && d.Day() == 3:
		return wd >= time.Monday && wd <= time.Thursday
	case d.Month() == time.December && d.Day() == 24:
		return wd >= time.Monday && wd <= time.Thursday
	case d.Month() == time.November && wd == time.Friday:
		return d.Add(-1) == nthWeekday(d.Year(), time.November, time.Thursday, 4)
	}
	return false
}

func nthWeekday(y int, m time.Month, wd time.Weekday, n int) models.Date {
	first := models.NewDate(y, m, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.Add(offset + 7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) models.Date {
	last := models.NewDate(y, m+1, 1).Add(-1)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.Add(-offset)
}

// easter returns Easter Sunday using the anonymous Gregorian algorithm.
func easter(y int) models.Date {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return models.NewDate(y, time.Month(month), day)
}
