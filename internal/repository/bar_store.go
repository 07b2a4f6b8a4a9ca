package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	pkgch "OptSignal/pkg/clickhouse"
	applogger "OptSignal/pkg/logger"
)

var _ domrepo.BarStore = (*CHBarStore)(nil)

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{ch: ch, l: l}
}

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.PriceBar, error) {
	table, err := barTable(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	return s.query(ctx, "get_bars", symbol, tf, fmt.Sprintf(qtpl, s.ch.Table(table)), symbol, from.UTC(), to.UTC())
}

// GetLatestNBars returns up to n most recent bars in ascending order.
func (s *CHBarStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.PriceBar, error) {
	table, err := barTable(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	out, err := s.query(ctx, "latest_bars", symbol, tf, fmt.Sprintf(qtpl, s.ch.Table(table)), symbol, n)
	if err != nil {
		return nil, err
	}
	reverseBars(out)
	return out, nil
}

func (s *CHBarStore) query(ctx context.Context, op, symbol string, tf domrepo.Timeframe, q string, args ...interface{}) ([]models.PriceBar, error) {
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("op", op),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
	}

	rows, err := s.ch.DB().QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out, err := scanBars(rows)
	if err != nil {
		s.l.Error("clickhouse scan error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.l.Debug("clickhouse query ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

func scanBars(rows *sql.Rows) ([]models.PriceBar, error) {
	out := make([]models.PriceBar, 0, 256)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func reverseBars(b []models.PriceBar) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
