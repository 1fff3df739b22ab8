package metrics

import (
	"PortDelta/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal    *prometheus.CounterVec
	priceErrors    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	totals         *prometheus.GaugeVec
	delta          prometheus.Gauge
	failedHoldings prometheus.Gauge
	rounds         *prometheus.CounterVec
	skippedRounds  prometheus.Counter
}

// New registers the recorder's collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portdelta_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		priceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portdelta_price_errors_total",
				Help: "Holdings whose price could not be resolved, by side",
			},
			[]string{"side"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portdelta_last_price",
				Help: "Last streamed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portdelta_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		totals: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portdelta_portfolio_value",
				Help: "Portfolio value of the last round by side",
			},
			[]string{"side"},
		),
		delta: f.NewGauge(prometheus.GaugeOpts{
			Name: "portdelta_portfolio_delta",
			Help: "Current minus reference value of the last round",
		}),
		failedHoldings: f.NewGauge(prometheus.GaugeOpts{
			Name: "portdelta_failed_holdings",
			Help: "Holdings with at least one unresolved price in the last round",
		}),
		rounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portdelta_rounds_total",
				Help: "Completed valuation rounds by market phase",
			},
			[]string{"phase"},
		),
		skippedRounds: f.NewCounter(prometheus.CounterOpts{
			Name: "portdelta_rounds_skipped_total",
			Help: "Ticks skipped because a round was still running",
		}),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordPriceError(side models.Side) {
	r.priceErrors.WithLabelValues(string(side)).Inc()
}

func (r *Recorder) RecordSkippedRound() {
	r.skippedRounds.Inc()
}

// RecordValuation publishes the totals of a finished round.
func (r *Recorder) RecordValuation(v *models.ValuationResult) {
	r.totals.WithLabelValues(string(models.SideReference)).Set(v.ReferenceTotal.InexactFloat64())
	r.totals.WithLabelValues(string(models.SideCurrent)).Set(v.CurrentTotal.InexactFloat64())
	r.delta.Set(v.Delta.InexactFloat64())
	r.failedHoldings.Set(float64(len(v.PerSymbolErrors)))
	r.rounds.WithLabelValues(string(v.Phase)).Inc()
}
