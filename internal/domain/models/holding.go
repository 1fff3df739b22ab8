package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Holding is a position in one instrument.
type Holding struct {
	Symbol string          `json:"symbol" yaml:"ticker"`
	Shares decimal.Decimal `json:"shares" yaml:"shares"`
}

// Portfolio is the ordered, immutable list of holdings loaded at startup.
type Portfolio []Holding

// Validate checks symbols are present and unique and shares are not negative.
func (p Portfolio) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("portfolio is empty")
	}
	seen := make(map[string]struct{}, len(p))
	for i, h := range p {
		if strings.TrimSpace(h.Symbol) == "" {
			return fmt.Errorf("holding %d: symbol is empty", i+1)
		}
		if h.Shares.IsNegative() {
			return fmt.Errorf("holding %s: negative shares %s", h.Symbol, h.Shares)
		}
		key := strings.ToUpper(h.Symbol)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("holding %s: duplicate symbol", h.Symbol)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Symbols returns the holding symbols in portfolio order.
func (p Portfolio) Symbols() []string {
	out := make([]string, len(p))
	for i, h := range p {
		out[i] = h.Symbol
	}
	return out
}
