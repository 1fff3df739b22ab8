package usecase

import (
	"context"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	mid "PortDelta/internal/middleware"
	applogger "PortDelta/pkg/logger"
)

// QuoteCollector reads trades from a market stream and hands them to the
// pipeline, or straight to the processor when there is none.
type QuoteCollector struct {
	stream  drepo.MarketStream
	proc    *TickProcessor
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	logger  *applogger.Logger
	done    chan struct{}
}

func NewQuoteCollector(
	stream drepo.MarketStream,
	proc *TickProcessor,
	pipe *mid.RealtimePipeline,
	metrics drepo.Metrics,
	logger *applogger.Logger,
) *QuoteCollector {
	if metrics == nil {
		metrics = drepo.NoopMetrics{}
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &QuoteCollector{stream: stream, proc: proc, pipe: pipe, metrics: metrics, logger: logger}
}

func (c *QuoteCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects, subscribes and consumes in the background until ctx is done.
func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.proc.Run(ctx)

	c.done = make(chan struct{})
	trCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, trCh, errCh)
	return nil
}

// Done is closed when the consume loop exits.
func (c *QuoteCollector) Done() <-chan struct{} { return c.done }

func (c *QuoteCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.metrics.RecordError("stream")
			c.logger.Warn("quote stream failed, reconnecting", applogger.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			trCh, errCh = c.stream.Read(ctx)
		case t, ok := <-trCh:
			if !ok {
				trCh = nil
				continue
			}
			if t == nil {
				continue
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, t)
			} else {
				err = c.proc.Process(ctx, t)
			}
			if err != nil {
				c.logger.Debug("trade dropped", applogger.String("symbol", t.Symbol), applogger.Error(err))
				continue
			}
			c.metrics.RecordLastPrice(t.Symbol, t.Price.InexactFloat64())
		}
	}
}

// reconnect retries until the stream is back or ctx is done.
func (c *QuoteCollector) reconnect(ctx context.Context) bool {
	for {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.metrics.RecordError("stream_reconnect")
		c.logger.Error("quote stream reconnect failed", applogger.Error(err))
	}
}

// Shutdown stops the pipeline, flushes recorded ticks and closes the stream.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	if err := c.proc.Close(ctx); err != nil {
		c.logger.Warn("tick flush on shutdown failed", applogger.Error(err))
	}
	return c.stream.Close()
}
