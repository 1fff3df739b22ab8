// Package presenter renders valuation results for people and downstream
// systems.
package presenter

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Treatment is the sign-dependent styling of a delta.
type Treatment string

const (
	TreatmentGain Treatment = "gain"
	TreatmentLoss Treatment = "loss"
)

// TreatmentOf returns gain for a zero or positive delta.
func TreatmentOf(delta decimal.Decimal) Treatment {
	if delta.IsNegative() {
		return TreatmentLoss
	}
	return TreatmentGain
}

// Formatter prints amounts in one currency, rounded to its minor unit.
type Formatter struct {
	cur money.Currency
}

func NewFormatter(code string) (*Formatter, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = money.USD
	}
	if money.GetCurrency(code) == nil {
		return nil, fmt.Errorf("unknown currency %q", code)
	}
	return &Formatter{cur: *money.New(0, code).Currency()}, nil
}

func (f *Formatter) Code() string { return f.cur.Code }

// Format renders amount like "$1,234.56" and negatives like "-$3.50".
func (f *Formatter) Format(amount decimal.Decimal) string {
	frac := int32(f.cur.Fraction)
	minor := amount.Round(frac).Shift(frac).IntPart()
	if minor < 0 {
		return "-" + f.cur.Formatter().Format(-minor)
	}
	return f.cur.Formatter().Format(minor)
}
