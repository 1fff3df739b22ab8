package models

// ValuationRequest is the query of GET /api/valuation. An empty currency
// means the configured one.
type ValuationRequest struct {
	Currency string `query:"currency" json:"currency" validate:"omitempty,len=3,alpha"`
	Detail   bool   `query:"detail" json:"detail"`
}

// RefreshRequest is the query of POST /api/valuation/refresh. Wait runs the
// round inline and returns its result.
type RefreshRequest struct {
	Wait bool `query:"wait" json:"wait"`
}
