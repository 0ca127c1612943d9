package model

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/pkg/market"
)

// BarsModel persists OHLCV bars keyed by (code, period, ts).
type BarsModel interface {
	Upsert(ctx context.Context, bar market.Bar) error
	// UpsertMany writes a batch and reports how many rows were written.
	// A row that fails is skipped and logged; the rest of the batch still
	// lands, so skipped rows show up as len(bars) minus the count.
	// A duplicate bar simply updates in place.
	UpsertMany(ctx context.Context, bars []market.Bar) (int, error)
	// QueryRange returns bars within [from, to] in ascending timestamp order.
	// Nil bounds are open-ended.
	QueryRange(ctx context.Context, code string, period market.Period, from, to *time.Time) ([]market.Bar, error)
	// Recent returns the latest limit bars in ascending timestamp order.
	Recent(ctx context.Context, code string, period market.Period, limit int) ([]market.Bar, error)
}

type barRow struct {
	Code          string    `db:"code"`
	Period        string    `db:"period"`
	Ts            time.Time `db:"ts"`
	Open          float64   `db:"open"`
	Close         float64   `db:"close"`
	High          float64   `db:"high"`
	Low           float64   `db:"low"`
	Volume        float64   `db:"volume"`
	Turnover      float64   `db:"turnover"`
	ChangeAmount  float64   `db:"change_amount"`
	ChangePercent float64   `db:"change_percent"`
}

func (r barRow) toBar() market.Bar {
	return market.Bar{
		Code:          r.Code,
		Period:        market.Period(r.Period),
		Timestamp:     r.Ts.UTC(),
		Open:          r.Open,
		Close:         r.Close,
		High:          r.High,
		Low:           r.Low,
		Volume:        r.Volume,
		Turnover:      r.Turnover,
		ChangeAmount:  r.ChangeAmount,
		ChangePercent: r.ChangePercent,
	}
}

type defaultBarsModel struct {
	conn sqlx.SqlConn
	cacheHelper
	ttl cachekeys.TTLSet
}

// NewBarsModel builds the Postgres-backed bars model.
func NewBarsModel(conn sqlx.SqlConn, cache gocache.Cache, ttl cachekeys.TTLSet) BarsModel {
	return &defaultBarsModel{
		conn:        conn,
		cacheHelper: cacheHelper{cache: cache},
		ttl:         ttl,
	}
}

const upsertBarStmt = `
INSERT INTO public.bars (
    code, period, ts, open, close, high, low, volume, turnover,
    change_amount, change_percent, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
)
ON CONFLICT (code, period, ts) DO UPDATE SET
    open = EXCLUDED.open,
    close = EXCLUDED.close,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    volume = EXCLUDED.volume,
    turnover = EXCLUDED.turnover,
    change_amount = EXCLUDED.change_amount,
    change_percent = EXCLUDED.change_percent,
    updated_at = NOW();`

func (m *defaultBarsModel) Upsert(ctx context.Context, bar market.Bar) error {
	if !bar.Period.Valid() {
		return fmt.Errorf("bars: unknown period %q", bar.Period)
	}
	if _, err := m.conn.ExecCtx(ctx, upsertBarStmt,
		bar.Code,
		string(bar.Period),
		bar.Timestamp.UTC(),
		bar.Open,
		bar.Close,
		bar.High,
		bar.Low,
		bar.Volume,
		bar.Turnover,
		bar.ChangeAmount,
		bar.ChangePercent,
	); err != nil {
		return fmt.Errorf("bars: upsert %s/%s@%s: %w", bar.Code, bar.Period, bar.Timestamp.Format(time.RFC3339), err)
	}
	m.del(ctx, cachekeys.BarsKey(bar.Code, string(bar.Period)))
	return nil
}

func (m *defaultBarsModel) UpsertMany(ctx context.Context, bars []market.Bar) (int, error) {
	written := 0
	touched := make(map[string]struct{})
	for _, bar := range bars {
		if !bar.Period.Valid() {
			continue
		}
		if _, err := m.conn.ExecCtx(ctx, upsertBarStmt,
			bar.Code,
			string(bar.Period),
			bar.Timestamp.UTC(),
			bar.Open,
			bar.Close,
			bar.High,
			bar.Low,
			bar.Volume,
			bar.Turnover,
			bar.ChangeAmount,
			bar.ChangePercent,
		); err != nil {
			logx.WithContext(ctx).Errorw("bars: upsert row skipped",
				logx.Field("code", bar.Code),
				logx.Field("period", string(bar.Period)),
				logx.Field("ts", bar.Timestamp.Format(time.RFC3339)),
				logx.Field("error", err.Error()),
			)
			continue
		}
		written++
		touched[cachekeys.BarsKey(bar.Code, string(bar.Period))] = struct{}{}
	}
	for key := range touched {
		m.del(ctx, key)
	}
	return written, nil
}

func (m *defaultBarsModel) QueryRange(ctx context.Context, code string, period market.Period, from, to *time.Time) ([]market.Bar, error) {
	query := `
SELECT code, period, ts, open, close, high, low, volume, turnover, change_amount, change_percent
FROM public.bars
WHERE code = $1 AND period = $2`
	args := []interface{}{code, string(period)}
	if from != nil {
		args = append(args, from.UTC())
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if to != nil {
		args = append(args, to.UTC())
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	query += " ORDER BY ts ASC"

	var rows []barRow
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("bars: query range %s/%s: %w", code, period, err)
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, row.toBar())
	}
	return bars, nil
}

func (m *defaultBarsModel) Recent(ctx context.Context, code string, period market.Period, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT code, period, ts, open, close, high, low, volume, turnover, change_amount, change_percent
FROM (
    SELECT code, period, ts, open, close, high, low, volume, turnover, change_amount, change_percent
    FROM public.bars
    WHERE code = $1 AND period = $2
    ORDER BY ts DESC
    LIMIT $3
) latest
ORDER BY ts ASC`
	var rows []barRow
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, code, string(period), limit); err != nil {
		return nil, fmt.Errorf("bars: recent %s/%s: %w", code, period, err)
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, row.toBar())
	}
	return bars, nil
}
