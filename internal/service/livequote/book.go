// Package livequote keeps the latest streamed trade per symbol and serves
// it as a price when it is fresh enough.
package livequote

import (
	"context"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	"PortDelta/pkg/util"

	"github.com/shopspring/decimal"
)

// Book holds the newest trade seen for each symbol.
type Book struct {
	mu     sync.RWMutex
	trades map[string]models.Trade
}

func NewBook() *Book {
	return &Book{trades: make(map[string]models.Trade)}
}

// Process records t unless an equal or newer trade is already held.
func (b *Book) Process(_ context.Context, t *models.Trade) error {
	if t == nil || !t.Price.IsPositive() {
		return nil
	}
	sym := util.NormalizeSymbol(t.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.trades[sym]; ok && !t.Timestamp.After(cur.Timestamp) {
		return nil
	}
	tr := *t
	tr.Symbol = sym
	b.trades[sym] = tr
	return nil
}

func (b *Book) Latest(symbol string) (models.Trade, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.trades[util.NormalizeSymbol(symbol)]
	return t, ok
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.trades)
}

// Overlay answers LatestExtendedQuote from the Book when the held trade is
// younger than maxAge and delegates everything else.
type Overlay struct {
	drepo.PriceSource
	book   *Book
	maxAge time.Duration
	now    func() time.Time
}

var _ drepo.PriceSource = (*Overlay)(nil)

func NewOverlay(base drepo.PriceSource, book *Book, maxAge time.Duration) *Overlay {
	return &Overlay{PriceSource: base, book: book, maxAge: maxAge, now: time.Now}
}

func (o *Overlay) LatestExtendedQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if t, ok := o.book.Latest(symbol); ok && o.now().Sub(t.Timestamp) <= o.maxAge {
		return t.Price, nil
	}
	return o.PriceSource.LatestExtendedQuote(ctx, symbol)
}
