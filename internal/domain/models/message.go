package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationMessage is the wire form of a ValuationResult. Decimals are
// encoded as JSON strings.
type ValuationMessage struct {
	RoundID        string             `json:"round_id"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
	Phase          Phase              `json:"phase"`
	ReferenceDate  Date               `json:"reference_date"`
	ReferenceTotal decimal.Decimal    `json:"reference_total"`
	CurrentTotal   decimal.Decimal    `json:"current_total"`
	Delta          decimal.Decimal    `json:"delta"`
	Holdings       []HoldingValuation `json:"holdings,omitempty"`
	Errors         []PriceErrorInfo   `json:"errors,omitempty"`
}

type PriceErrorInfo struct {
	Symbol  string `json:"symbol"`
	Side    Side   `json:"side"`
	Timeout bool   `json:"timeout,omitempty"`
	Message string `json:"message"`
}

// Message converts r. Holdings are included only when detail is set.
func (r *ValuationResult) Message(detail bool) ValuationMessage {
	m := ValuationMessage{
		RoundID:        r.RoundID,
		EvaluatedAt:    r.EvaluatedAt,
		Phase:          r.Phase,
		ReferenceDate:  r.ReferenceDate,
		ReferenceTotal: r.ReferenceTotal,
		CurrentTotal:   r.CurrentTotal,
		Delta:          r.Delta,
	}
	if detail {
		m.Holdings = r.Holdings
	}
	for _, sym := range r.FailedSymbols() {
		for _, e := range r.PerSymbolErrors[sym] {
			m.Errors = append(m.Errors, PriceErrorInfo{
				Symbol:  sym,
				Side:    e.Side,
				Timeout: e.Timeout(),
				Message: e.Error(),
			})
		}
	}
	return m
}
