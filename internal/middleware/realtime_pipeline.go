package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
	domrepo "PortDelta/internal/domain/repository"
	applogger "PortDelta/pkg/logger"
	"PortDelta/pkg/util"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

// RealtimePipeline sits between the trade stream and the tick processor.
// It validates, throttles per symbol and retries from a bounded buffer
// when downstream fails.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	logger  *applogger.Logger
	maxRPS  int
	bufSize int
	bufCh   chan *models.Trade

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	lastSeen map[string]time.Time // per-symbol last accepted time

	now func() time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max trades per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *RealtimePipeline) { p.logger = l }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		logger:   applogger.Nop(),
		maxRPS:   20,
		bufSize:  1000,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = domrepo.NoopMetrics{}
	}
	p.bufCh = make(chan *models.Trade, p.bufSize)
	return p
}

// Start launches the retry loop for buffered trades.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	go p.drain(ctx, stop)
}

func (p *RealtimePipeline) drain(ctx context.Context, stop <-chan struct{}) {
	const minBackoff, maxBackoff = 50 * time.Millisecond, 2 * time.Second
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case t := <-p.bufCh:
			if err := p.proc.Process(ctx, t); err == nil {
				backoff = minBackoff
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			if backoff < maxBackoff {
				backoff *= 2
			}
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-time.After(backoff):
			}
			select {
			case p.bufCh <- t:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// Stop stops the retry loop. Buffered trades are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered reports the number of trades waiting for retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards t, buffering it on downstream errors.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Trade) error {
	start := p.now()
	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	t.Symbol = util.NormalizeSymbol(t.Symbol)

	if !p.allow(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			p.logger.Warn("pipeline buffer full", applogger.String("symbol", t.Symbol))
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTrade(t *models.Trade) error {
	switch {
	case t == nil:
		return errors.New("trade nil")
	case t.Symbol == "":
		return errors.New("symbol empty")
	case t.Timestamp.IsZero():
		return errors.New("timestamp invalid")
	case !t.Price.IsPositive():
		return fmt.Errorf("%s: non-positive price %s", t.Symbol, t.Price)
	case t.Volume.IsNegative():
		return fmt.Errorf("%s: negative volume %s", t.Symbol, t.Volume)
	}
	return nil
}

// allow admits at most maxRPS trades per second per symbol.
func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, seen := p.lastSeen[symbol]
	if seen && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
