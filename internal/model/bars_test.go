package model

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/internal/config"
	"marketpulse-api/pkg/market"
)

// failConn fails ExecCtx for configured codes and records every call.
// Unused SqlConn methods panic via the embedded nil interface.
type failConn struct {
	sqlx.SqlConn
	failCodes map[string]error
	execCodes []string
}

type noopResult struct{}

func (noopResult) LastInsertId() (int64, error) { return 0, nil }
func (noopResult) RowsAffected() (int64, error) { return 1, nil }

func (c *failConn) ExecCtx(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	code, _ := args[0].(string)
	c.execCodes = append(c.execCodes, code)
	if err, ok := c.failCodes[code]; ok {
		return nil, err
	}
	return noopResult{}, nil
}

func testBar(code string, day int) market.Bar {
	return market.Bar{
		Code:      code,
		Period:    market.Period1d,
		Timestamp: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:      10,
		High:      11,
		Low:       9,
		Close:     10.5,
		Volume:    1000,
	}
}

func TestUpsertManySkipsFailedRowAndKeepsGoing(t *testing.T) {
	conn := &failConn{failCodes: map[string]error{
		"000002": errors.New("numeric field overflow"),
	}}
	m := NewBarsModel(conn, nil, cachekeys.NewTTLSet(config.CacheTTL{}))

	bars := []market.Bar{testBar("000001", 2), testBar("000002", 2), testBar("000003", 2)}
	written, err := m.UpsertMany(context.Background(), bars)

	require.NoError(t, err)
	require.Equal(t, 2, written)
	// The row after the failed one must still reach the database.
	require.Equal(t, []string{"000001", "000002", "000003"}, conn.execCodes)
}

func TestUpsertManySkipsInvalidPeriod(t *testing.T) {
	conn := &failConn{}
	m := NewBarsModel(conn, nil, cachekeys.NewTTLSet(config.CacheTTL{}))

	bad := testBar("000001", 2)
	bad.Period = "5m"
	written, err := m.UpsertMany(context.Background(), []market.Bar{bad, testBar("000002", 2)})

	require.NoError(t, err)
	require.Equal(t, 1, written)
	require.Equal(t, []string{"000002"}, conn.execCodes)
}

func TestUpsertManyEmptyBatch(t *testing.T) {
	conn := &failConn{}
	m := NewBarsModel(conn, nil, cachekeys.NewTTLSet(config.CacheTTL{}))

	written, err := m.UpsertMany(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, written)
	require.Empty(t, conn.execCodes)
}
