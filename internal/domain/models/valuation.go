package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side selects which of the two compared prices is meant.
type Side string

const (
	SideReference Side = "reference"
	SideCurrent   Side = "current"
)

// Phase is the market state a round was evaluated in.
type Phase string

const (
	PhaseMarketClosed Phase = "market_closed"
	PhasePreClose     Phase = "pre_close"
	PhasePostClose    Phase = "post_close"
)

// CachedClose is an official daily close remembered for a symbol.
type CachedClose struct {
	Price decimal.Decimal `json:"price"`
	AsOf  Date            `json:"as_of"`
}

// HoldingValuation is the per-holding detail of a round.
type HoldingValuation struct {
	Symbol        string              `json:"symbol"`
	Shares        decimal.Decimal     `json:"shares"`
	Reference     decimal.NullDecimal `json:"reference"`
	ReferenceAsOf Date                `json:"reference_as_of,omitempty"`
	Current       decimal.NullDecimal `json:"current"`
}

// ReferenceValue is shares times the reference price, zero if unresolved.
func (h HoldingValuation) ReferenceValue() decimal.Decimal {
	if !h.Reference.Valid {
		return decimal.Zero
	}
	return h.Reference.Decimal.Mul(h.Shares)
}

// CurrentValue is shares times the current price, zero if unresolved.
func (h HoldingValuation) CurrentValue() decimal.Decimal {
	if !h.Current.Valid {
		return decimal.Zero
	}
	return h.Current.Decimal.Mul(h.Shares)
}

// ValuationResult is produced once per round and not mutated afterwards.
type ValuationResult struct {
	RoundID         string
	EvaluatedAt     time.Time
	Phase           Phase
	ReferenceDate   Date
	ReferenceTotal  decimal.Decimal
	CurrentTotal    decimal.Decimal
	Delta           decimal.Decimal
	Holdings        []HoldingValuation
	PerSymbolErrors map[string][]*PriceError
}

// HasErrors reports whether any side of any holding failed.
func (r *ValuationResult) HasErrors() bool { return len(r.PerSymbolErrors) > 0 }

// FailedSymbols returns the symbols with at least one failed side, sorted.
func (r *ValuationResult) FailedSymbols() []string {
	out := make([]string, 0, len(r.PerSymbolErrors))
	for s := range r.PerSymbolErrors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Trade is one streamed execution.
type Trade struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}
