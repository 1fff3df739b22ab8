package metrics

import (
	"testing"

	"PortDelta/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordValuation(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordValuation(&models.ValuationResult{
		Phase:          models.PhaseMarketClosed,
		ReferenceTotal: decimal.NewFromInt(1250),
		CurrentTotal:   decimal.NewFromInt(1265),
		Delta:          decimal.NewFromInt(15),
		PerSymbolErrors: map[string][]*models.PriceError{
			"MSFT": {models.NewPriceError("MSFT", models.SideCurrent, models.ErrPriceUnavailable)},
		},
	})
	r.RecordPriceError(models.SideCurrent)
	r.RecordSkippedRound()

	assert.Equal(t, 15.0, testutil.ToFloat64(r.delta))
	assert.Equal(t, 1250.0, testutil.ToFloat64(r.totals.WithLabelValues("reference")))
	assert.Equal(t, 1265.0, testutil.ToFloat64(r.totals.WithLabelValues("current")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failedHoldings))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rounds.WithLabelValues("market_closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.priceErrors.WithLabelValues("current")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skippedRounds))
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic.
	New(prometheus.NewRegistry()).RecordError("x")
	New(prometheus.NewRegistry()).RecordError("x")
}
