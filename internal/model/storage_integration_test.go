//go:build integration
// +build integration

package model_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zeromicro/go-zero/core/stores/cache"

	appconfig "marketpulse-api/internal/config"
	"marketpulse-api/internal/model"
	"marketpulse-api/internal/svc"
	"marketpulse-api/pkg/confkit"
	"marketpulse-api/pkg/market"
)

func newIntegrationServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	cfg := appconfig.MustLoad(confkit.MustProjectPath("etc/marketpulse.yaml"))
	return svc.NewServiceContext(*cfg, cfg.MainPath())
}

func TestPostgresConnectivity(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	db := requirePostgres(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var one int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	assert.NoError(t, err, "postgres connectivity check failed")
	assert.Equal(t, 1, one, "postgres returned unexpected value")
}

func TestRedisConnectivity(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	cacheClient := requireCache(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := fmt.Sprintf("marketpulse:integration:%d", time.Now().UnixNano())
	const payload = "ok"

	err := cacheClient.SetWithExpireCtx(ctx, key, payload, 10*time.Second)
	assert.NoError(t, err, "cache set failed")
	defer cacheClient.DelCtx(context.Background(), key)

	var value string
	err = cacheClient.GetCtx(ctx, key, &value)
	assert.NoError(t, err, "cache get failed")
	assert.Equal(t, payload, value, "cache value mismatch")
}

func TestBarsUpsertDeduplicates(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	requirePostgres(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code := fmt.Sprintf("it%06d", time.Now().UnixNano()%1000000)
	err := svcCtx.InstrumentsModel.Upsert(ctx, &market.InstrumentInfo{
		Code: code, Name: "integration probe", Market: "SH",
	})
	assert.NoError(t, err, "instrument upsert failed")
	defer svcCtx.InstrumentsModel.Deactivate(context.Background(), code)

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bar := market.Bar{
		Code: code, Period: market.Period1d, Timestamp: ts,
		Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 1000,
	}

	written, err := svcCtx.BarsModel.UpsertMany(ctx, []market.Bar{bar})
	assert.NoError(t, err)
	assert.Equal(t, 1, written)

	// Same (code, period, ts) again with a revised close updates in place.
	bar.Close = 10.8
	_, err = svcCtx.BarsModel.UpsertMany(ctx, []market.Bar{bar})
	assert.NoError(t, err)

	bars, err := svcCtx.BarsModel.Recent(ctx, code, market.Period1d, 10)
	assert.NoError(t, err)
	if assert.Len(t, bars, 1, "duplicate bar must not create a second row") {
		assert.InDelta(t, 10.8, bars[0].Close, 1e-9)
	}
}

func TestQuotesLatestWins(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	requirePostgres(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code := fmt.Sprintf("qt%06d", time.Now().UnixNano()%1000000)
	base := time.Now().UTC().Truncate(time.Second)

	for i, price := range []float64{10.1, 10.2, 10.3} {
		err := svcCtx.QuotesModel.Insert(ctx, &market.Quote{
			Code: code, Current: price, At: base.Add(time.Duration(i) * time.Second),
		})
		assert.NoError(t, err)
	}

	latest, err := svcCtx.QuotesModel.Latest(ctx, code)
	assert.NoError(t, err)
	assert.InDelta(t, 10.3, latest.Current, 1e-9)

	batch, err := svcCtx.QuotesModel.LatestBatch(ctx, []string{code, "no-such-code"})
	assert.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestFindOneMissingInstrument(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	requirePostgres(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := svcCtx.InstrumentsModel.FindOne(ctx, "zz9999")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func requirePostgres(t *testing.T, svcCtx *svc.ServiceContext) *sql.DB {
	t.Helper()
	if svcCtx.DBConn == nil {
		t.Skip("Postgres not configured (DBConn nil)")
	}
	raw, err := svcCtx.DBConn.RawDB()
	if err != nil {
		t.Fatalf("failed to obtain postgres handle: %v", err)
	}
	return raw
}

func requireCache(t *testing.T, svcCtx *svc.ServiceContext) cache.Cache {
	t.Helper()
	if svcCtx.Cache == nil {
		t.Skip("cache not configured (Cache nil)")
	}
	return svcCtx.Cache
}
