package models

import "time"

// TradingSession is one day on which the exchange trades.
// Open and Close are instants in the exchange location.
type TradingSession struct {
	Date  Date
	Open  time.Time
	Close time.Time
}

// ExtendedHours returns the pre-market start and after-hours end of the session day.
func (s TradingSession) ExtendedHours() (time.Time, time.Time) {
	loc := s.Close.Location()
	return s.Date.At(4, 0, loc), s.Date.At(20, 0, loc)
}

// ClosedAt reports whether the regular session has ended at t.
func (s TradingSession) ClosedAt(t time.Time) bool {
	return !t.Before(s.Close)
}
