package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/pkg/market"
)

// Instrument is one tracked stock.
type Instrument struct {
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	Market    string    `db:"market"`
	Industry  string    `db:"industry"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// InstrumentsModel persists stock metadata.
type InstrumentsModel interface {
	Upsert(ctx context.Context, info *market.InstrumentInfo) error
	Deactivate(ctx context.Context, code string) error
	FindOne(ctx context.Context, code string) (*Instrument, error)
	// Search matches code prefix or name substring, active instruments first.
	Search(ctx context.Context, keyword string, limit int) ([]Instrument, error)
	ListActive(ctx context.Context) ([]Instrument, error)
	// CountByMarket reports how many active instruments each market holds.
	CountByMarket(ctx context.Context) (map[string]int, error)
}

type defaultInstrumentsModel struct {
	conn sqlx.SqlConn
	cacheHelper
	ttl cachekeys.TTLSet
}

// NewInstrumentsModel builds the Postgres-backed instruments model.
func NewInstrumentsModel(conn sqlx.SqlConn, cache gocache.Cache, ttl cachekeys.TTLSet) InstrumentsModel {
	return &defaultInstrumentsModel{
		conn:        conn,
		cacheHelper: cacheHelper{cache: cache},
		ttl:         ttl,
	}
}

func (m *defaultInstrumentsModel) Upsert(ctx context.Context, info *market.InstrumentInfo) error {
	if info == nil || strings.TrimSpace(info.Code) == "" {
		return fmt.Errorf("instruments: upsert requires a code")
	}
	stmt := `
INSERT INTO public.instruments (code, name, market, industry, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    market = EXCLUDED.market,
    industry = EXCLUDED.industry,
    active = TRUE,
    updated_at = NOW();`
	if _, err := m.conn.ExecCtx(ctx, stmt,
		info.Code,
		info.Name,
		info.Market,
		sql.NullString{String: info.Industry, Valid: info.Industry != ""},
	); err != nil {
		return fmt.Errorf("instruments: upsert %s: %w", info.Code, err)
	}
	m.set(ctx, cachekeys.InstrumentKey(info.Code), cachekeys.InstrumentTTL(m.ttl), info)
	return nil
}

func (m *defaultInstrumentsModel) Deactivate(ctx context.Context, code string) error {
	stmt := `UPDATE public.instruments SET active = FALSE, updated_at = NOW() WHERE code = $1`
	result, err := m.conn.ExecCtx(ctx, stmt, code)
	if err != nil {
		return fmt.Errorf("instruments: deactivate %s: %w", code, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	m.del(ctx, cachekeys.InstrumentKey(code))
	return nil
}

func (m *defaultInstrumentsModel) FindOne(ctx context.Context, code string) (*Instrument, error) {
	query := `
SELECT code, name, market, COALESCE(industry, '') AS industry, active, created_at, updated_at
FROM public.instruments
WHERE code = $1`
	var row Instrument
	if err := m.conn.QueryRowCtx(ctx, &row, query, code); err != nil {
		if err == sqlx.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("instruments: find %s: %w", code, err)
	}
	return &row, nil
}

func (m *defaultInstrumentsModel) Search(ctx context.Context, keyword string, limit int) ([]Instrument, error) {
	if limit <= 0 {
		limit = 20
	}
	keyword = strings.TrimSpace(keyword)
	query := `
SELECT code, name, market, COALESCE(industry, '') AS industry, active, created_at, updated_at
FROM public.instruments
WHERE code LIKE $1 || '%' OR name ILIKE '%' || $1 || '%'
ORDER BY active DESC, code ASC
LIMIT $2`
	var rows []Instrument
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, keyword, limit); err != nil {
		return nil, fmt.Errorf("instruments: search %q: %w", keyword, err)
	}
	return rows, nil
}

func (m *defaultInstrumentsModel) ListActive(ctx context.Context) ([]Instrument, error) {
	query := `
SELECT code, name, market, COALESCE(industry, '') AS industry, active, created_at, updated_at
FROM public.instruments
WHERE active
ORDER BY code ASC`
	var rows []Instrument
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("instruments: list active: %w", err)
	}
	return rows, nil
}

func (m *defaultInstrumentsModel) CountByMarket(ctx context.Context) (map[string]int, error) {
	query := `SELECT market, COUNT(*) AS total FROM public.instruments WHERE active GROUP BY market`
	var rows []struct {
		Market string `db:"market"`
		Total  int    `db:"total"`
	}
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("instruments: count by market: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Market] = row.Total
	}
	return counts, nil
}
