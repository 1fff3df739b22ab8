package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	pkgch "PortDelta/pkg/clickhouse"
	applogger "PortDelta/pkg/logger"

	"github.com/shopspring/decimal"
)

const ticksTable = "quote_ticks"

// TickSchema returns the DDL for the tick table in database.
func TickSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts     DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    price  Decimal(18, 6),
    volume Decimal(18, 4),
    source LowCardinality(String)
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, ts)
TTL toDateTime(ts) + INTERVAL 30 DAY`, database, ticksTable),
	}
}

// CHTickStorage records streamed trades in ClickHouse.
type CHTickStorage struct {
	db     *sql.DB
	table  string
	source string
	logger *applogger.Logger
}

var _ drepo.TickStorage = (*CHTickStorage)(nil)

func NewCHTickStorage(ch *pkgch.Client, logger *applogger.Logger) *CHTickStorage {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &CHTickStorage{
		db:     ch.DB(),
		table:  ch.Database() + "." + ticksTable,
		source: "finnhub",
		logger: logger,
	}
}

func (s *CHTickStorage) Store(ctx context.Context, t *models.Trade) error {
	return s.StoreBatch(ctx, []*models.Trade{t})
}

// StoreBatch inserts trades with multi-row VALUES, chunked to bound query size.
func (s *CHTickStorage) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	const chunkSize = 2000
	for start := 0; start < len(trades); start += chunkSize {
		end := min(start+chunkSize, len(trades))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, t := range trades[start:end] {
			if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, t.Timestamp.UTC(), t.Symbol, t.Price.String(), t.Volume.String(), s.source)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logger.Error("clickhouse insert ticks", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

// LastBetween returns the latest tick for symbol in [from, to], or nil if none.
func (s *CHTickStorage) LastBetween(ctx context.Context, symbol string, from, to time.Time) (*models.Trade, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, toString(price), toString(volume) FROM %s
WHERE symbol = ? AND ts >= ? AND ts <= ?
ORDER BY ts DESC LIMIT 1`, s.table)

	var (
		t             models.Trade
		price, volume string
	)
	err := s.db.QueryRowContext(ctx, q, symbol, from.UTC(), to.UTC()).Scan(&t.Symbol, &t.Timestamp, &price, &volume)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("last tick %s: %w", symbol, err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("last tick %s price: %w", symbol, err)
	}
	t.Volume, _ = decimal.NewFromString(volume)
	return &t, nil
}

func (s *CHTickStorage) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHTickStorage) Close() error { return nil }
