package model

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/pkg/market"
)

// QuotesModel persists realtime quote snapshots. Snapshots are append-only;
// latest lookups pick the most recent row per code.
type QuotesModel interface {
	Insert(ctx context.Context, quote *market.Quote) error
	Latest(ctx context.Context, code string) (*market.Quote, error)
	// LatestBatch returns the most recent quote per code; codes without any
	// stored quote are simply absent from the result.
	LatestBatch(ctx context.Context, codes []string) (map[string]market.Quote, error)
}

type quoteRow struct {
	Code          string    `db:"code"`
	Name          string    `db:"name"`
	Current       float64   `db:"current"`
	Open          float64   `db:"open"`
	High          float64   `db:"high"`
	Low           float64   `db:"low"`
	PrevClose     float64   `db:"prev_close"`
	ChangeAmount  float64   `db:"change_amount"`
	ChangePercent float64   `db:"change_percent"`
	Volume        float64   `db:"volume"`
	Turnover      float64   `db:"turnover"`
	Ts            time.Time `db:"ts"`
}

func (r quoteRow) toQuote() market.Quote {
	return market.Quote{
		Code:          r.Code,
		Name:          r.Name,
		Current:       r.Current,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		PrevClose:     r.PrevClose,
		ChangeAmount:  r.ChangeAmount,
		ChangePercent: r.ChangePercent,
		Volume:        r.Volume,
		Turnover:      r.Turnover,
		At:            r.Ts.UTC(),
	}
}

type defaultQuotesModel struct {
	conn sqlx.SqlConn
	cacheHelper
	ttl cachekeys.TTLSet
}

// NewQuotesModel builds the Postgres-backed quotes model.
func NewQuotesModel(conn sqlx.SqlConn, cache gocache.Cache, ttl cachekeys.TTLSet) QuotesModel {
	return &defaultQuotesModel{
		conn:        conn,
		cacheHelper: cacheHelper{cache: cache},
		ttl:         ttl,
	}
}

func (m *defaultQuotesModel) Insert(ctx context.Context, quote *market.Quote) error {
	if quote == nil || quote.Code == "" {
		return fmt.Errorf("quotes: insert requires a code")
	}
	at := quote.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	stmt := `
INSERT INTO public.quotes (
    code, name, current, open, high, low, prev_close,
    change_amount, change_percent, volume, turnover, ts, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
)`
	if _, err := m.conn.ExecCtx(ctx, stmt,
		quote.Code,
		quote.Name,
		quote.Current,
		quote.Open,
		quote.High,
		quote.Low,
		quote.PrevClose,
		quote.ChangeAmount,
		quote.ChangePercent,
		quote.Volume,
		quote.Turnover,
		at.UTC(),
	); err != nil {
		return fmt.Errorf("quotes: insert %s: %w", quote.Code, err)
	}
	m.set(ctx, cachekeys.QuoteLatestKey(quote.Code), cachekeys.QuoteTTL(m.ttl), quote)
	return nil
}

func (m *defaultQuotesModel) Latest(ctx context.Context, code string) (*market.Quote, error) {
	var cached market.Quote
	if m.get(ctx, cachekeys.QuoteLatestKey(code), &cached) {
		return &cached, nil
	}

	query := `
SELECT code, name, current, open, high, low, prev_close,
       change_amount, change_percent, volume, turnover, ts
FROM public.quotes
WHERE code = $1
ORDER BY ts DESC
LIMIT 1`
	var row quoteRow
	if err := m.conn.QueryRowCtx(ctx, &row, query, code); err != nil {
		if err == sqlx.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("quotes: latest %s: %w", code, err)
	}
	quote := row.toQuote()
	m.set(ctx, cachekeys.QuoteLatestKey(code), cachekeys.QuoteTTL(m.ttl), &quote)
	return &quote, nil
}

func (m *defaultQuotesModel) LatestBatch(ctx context.Context, codes []string) (map[string]market.Quote, error) {
	if len(codes) == 0 {
		return map[string]market.Quote{}, nil
	}
	query := `
SELECT DISTINCT ON (code)
       code, name, current, open, high, low, prev_close,
       change_amount, change_percent, volume, turnover, ts
FROM public.quotes
WHERE code = ANY($1)
ORDER BY code, ts DESC`
	var rows []quoteRow
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("quotes: latest batch: %w", err)
	}
	result := make(map[string]market.Quote, len(rows))
	for _, row := range rows {
		result[row.Code] = row.toQuote()
	}
	return result, nil
}
