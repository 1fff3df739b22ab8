package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	mid "PortDelta/internal/middleware"
	applogger "PortDelta/pkg/logger"
)

// TickProcessor feeds streamed trades into the live quote book and, when a
// TickStorage is configured, records them in batches.
type TickProcessor struct {
	book    mid.Proc
	store   drepo.TickStorage
	metrics drepo.Metrics
	logger  *applogger.Logger
	batchSz int
	batchTO time.Duration

	mu      sync.Mutex
	pending []*models.Trade
}

type TickOption func(*TickProcessor)

// WithTickStorage enables recording. batchSz <= 1 stores every trade on arrival.
func WithTickStorage(store drepo.TickStorage, batchSz int, batchTO time.Duration) TickOption {
	return func(p *TickProcessor) {
		p.store = store
		p.batchSz = batchSz
		if batchTO > 0 {
			p.batchTO = batchTO
		}
	}
}

func WithTickLogger(l *applogger.Logger) TickOption {
	return func(p *TickProcessor) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewTickProcessor(book mid.Proc, metrics drepo.Metrics, opts ...TickOption) *TickProcessor {
	p := &TickProcessor{
		book:    book,
		metrics: metrics,
		logger:  applogger.Nop(),
		batchTO: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = drepo.NoopMetrics{}
	}
	return p
}

// Process updates the book first so a storage outage never hides a quote.
func (p *TickProcessor) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}
	start := time.Now()

	if err := p.book.Process(ctx, t); err != nil {
		p.metrics.RecordError("book")
		return fmt.Errorf("update book: %w", err)
	}

	if p.store != nil {
		if p.batchSz <= 1 {
			if err := p.store.Store(ctx, t); err != nil {
				p.metrics.RecordError("tick_store")
				return fmt.Errorf("store tick: %w", err)
			}
		} else if err := p.enqueue(ctx, t); err != nil {
			return err
		}
	}

	p.metrics.RecordLatency("tick_process", time.Since(start).Seconds())
	return nil
}

func (p *TickProcessor) enqueue(ctx context.Context, t *models.Trade) error {
	p.mu.Lock()
	p.pending = append(p.pending, t)
	full := len(p.pending) >= p.batchSz
	p.mu.Unlock()
	if !full {
		return nil
	}
	return p.Flush(ctx)
}

// Flush writes pending trades. On failure they are kept for the next flush.
func (p *TickProcessor) Flush(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.store.StoreBatch(ctx, batch); err != nil {
		p.metrics.RecordError("tick_store_batch")
		p.mu.Lock()
		// keep at most two batches around while storage is down
		keep := append(batch, p.pending...)
		if limit := 2 * max(p.batchSz, 1); len(keep) > limit {
			keep = keep[len(keep)-limit:]
		}
		p.pending = keep
		p.mu.Unlock()
		return fmt.Errorf("store batch: %w", err)
	}
	p.metrics.RecordLatency("tick_store_batch", time.Since(start).Seconds())
	return nil
}

// Pending returns the number of trades waiting for the next flush.
func (p *TickProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run flushes on every batch timeout until ctx is done.
func (p *TickProcessor) Run(ctx context.Context) {
	if p.store == nil || p.batchSz <= 1 {
		return
	}
	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("tick flush failed", applogger.Int("pending", p.Pending()), applogger.Error(err))
			}
		}
	}
}

// Close flushes what is left and closes the storage.
func (p *TickProcessor) Close(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	err := p.Flush(ctx)
	if cerr := p.store.Close(); err == nil {
		err = cerr
	}
	return err
}
