package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PortDelta/internal/domain/models"
	"PortDelta/internal/service/livequote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTicks struct {
	mu      sync.Mutex
	stored  []*models.Trade
	batches int
	fail    error
	closed  bool
}

func (m *memTicks) Store(_ context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.stored = append(m.stored, t)
	return nil
}

func (m *memTicks) StoreBatch(_ context.Context, ts []*models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.batches++
	m.stored = append(m.stored, ts...)
	return nil
}

func (m *memTicks) LastBetween(context.Context, string, time.Time, time.Time) (*models.Trade, error) {
	return nil, nil
}

func (m *memTicks) Health(context.Context) error { return nil }

func (m *memTicks) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memTicks) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *memTicks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func trade(sym, px string, sec int64) *models.Trade {
	return &models.Trade{Symbol: sym, Price: d(px), Volume: d("1"), Timestamp: time.Unix(1706921940+sec, 0)}
}

func TestTickProcessorUpdatesBook(t *testing.T) {
	book := livequote.NewBook()
	p := NewTickProcessor(book, nil)

	require.NoError(t, p.Process(context.Background(), trade("AAPL", "186.1", 0)))
	require.NoError(t, p.Process(context.Background(), trade("AAPL", "186.3", 1)))

	got, ok := book.Latest("AAPL")
	require.True(t, ok)
	assert.Equal(t, "186.3", got.Price.String())
	assert.Error(t, p.Process(context.Background(), nil))
	assert.NoError(t, p.Close(context.Background()))
}

func TestTickProcessorStoresEachTradeWithoutBatching(t *testing.T) {
	store := &memTicks{}
	p := NewTickProcessor(livequote.NewBook(), nil, WithTickStorage(store, 1, 0))

	require.NoError(t, p.Process(context.Background(), trade("AAPL", "1", 0)))
	assert.Equal(t, 1, store.count())
	assert.Zero(t, p.Pending())
}

func TestTickProcessorBatches(t *testing.T) {
	store := &memTicks{}
	p := NewTickProcessor(livequote.NewBook(), nil, WithTickStorage(store, 3, time.Hour))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, trade("AAPL", "1", 0)))
	require.NoError(t, p.Process(ctx, trade("MSFT", "1", 0)))
	assert.Zero(t, store.count())
	assert.Equal(t, 2, p.Pending())

	require.NoError(t, p.Process(ctx, trade("AAPL", "2", 1)))
	assert.Equal(t, 3, store.count())
	assert.Equal(t, 1, store.batches)

	require.NoError(t, p.Process(ctx, trade("AAPL", "3", 2)))
	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 4, store.count())
	assert.True(t, store.closed)
}

func TestTickProcessorKeepsBatchOnStorageError(t *testing.T) {
	store := &memTicks{}
	store.setFail(errors.New("clickhouse down"))
	book := livequote.NewBook()
	p := NewTickProcessor(book, nil, WithTickStorage(store, 2, time.Hour))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, trade("AAPL", "1", 0)))
	err := p.Process(ctx, trade("AAPL", "2", 1))
	require.Error(t, err)
	assert.Equal(t, 2, p.Pending())

	// the quote is still served while storage is down
	got, ok := book.Latest("AAPL")
	require.True(t, ok)
	assert.Equal(t, "2", got.Price.String())

	for i := int64(2); i < 10; i++ {
		_ = p.Process(ctx, trade("AAPL", "3", i))
	}
	assert.LessOrEqual(t, p.Pending(), 4)

	store.setFail(nil)
	require.NoError(t, p.Flush(ctx))
	assert.Zero(t, p.Pending())
	assert.Positive(t, store.count())
}

func TestTickProcessorRunFlushesOnTimeout(t *testing.T) {
	store := &memTicks{}
	p := NewTickProcessor(livequote.NewBook(), nil, WithTickStorage(store, 100, 10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.NoError(t, p.Process(ctx, trade("AAPL", "1", 0)))
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}
