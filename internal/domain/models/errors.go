package models

import (
	"errors"
	"fmt"
)

var (
	// ErrPriceUnavailable means a source has no price for the symbol and date.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrDataSourceTimeout means a source call exceeded its deadline.
	ErrDataSourceTimeout = errors.New("data source timeout")
	// ErrNoTradingDayFound means the backward walk ran out of lookback.
	ErrNoTradingDayFound = errors.New("no trading day found")
	// ErrCalendarUnresolvable aborts a valuation round.
	ErrCalendarUnresolvable = errors.New("calendar unresolvable")
)

// PriceError records why one side of one holding could not be priced.
// It always matches ErrPriceUnavailable with errors.Is.
type PriceError struct {
	Symbol string
	Side   Side
	Err    error
}

func NewPriceError(symbol string, side Side, err error) *PriceError {
	return &PriceError{Symbol: symbol, Side: side, Err: err}
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("%s %s price: %v", e.Symbol, e.Side, e.Err)
}

func (e *PriceError) Unwrap() error { return e.Err }

func (e *PriceError) Is(target error) bool { return target == ErrPriceUnavailable }

// Timeout reports whether the failure was a deadline.
func (e *PriceError) Timeout() bool { return errors.Is(e.Err, ErrDataSourceTimeout) }

// PriceUnavailable wraps a source-specific reason.
func PriceUnavailable(symbol string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrPriceUnavailable, symbol, fmt.Sprintf(format, args...))
}
