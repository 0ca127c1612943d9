package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse-api/internal/config"
	"marketpulse-api/internal/model"
	"marketpulse-api/pkg/market"
)

type stubProvider struct {
	mu          sync.Mutex
	failCodes   map[string]error
	barsPerCall int
	delay       time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newStubProvider() *stubProvider {
	return &stubProvider{failCodes: map[string]error{}, barsPerCall: 3}
}

func (p *stubProvider) track() func() {
	cur := p.inFlight.Add(1)
	for {
		max := p.maxInFlight.Load()
		if cur <= max || p.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return func() { p.inFlight.Add(-1) }
}

func (p *stubProvider) FetchInfo(ctx context.Context, code string) (*market.InstrumentInfo, error) {
	defer p.track()()
	if err, ok := p.failCodes[code]; ok {
		return nil, err
	}
	return &market.InstrumentInfo{Code: code, Name: "stock " + code, Market: "SZ", Active: true}, nil
}

func (p *stubProvider) FetchQuote(ctx context.Context, code string) (*market.Quote, error) {
	defer p.track()()
	return &market.Quote{Code: code, Current: 10, At: time.Now().UTC()}, nil
}

func (p *stubProvider) FetchBars(ctx context.Context, code string, period market.Period, count int) ([]market.Bar, error) {
	defer p.track()()
	bars := make([]market.Bar, 0, p.barsPerCall)
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < p.barsPerCall; i++ {
		bars = append(bars, market.Bar{
			Code: code, Period: period, Timestamp: base.AddDate(0, 0, i),
			Open: 10, Close: 10.5, High: 10.6, Low: 9.9, Volume: 1000,
		})
	}
	return bars, nil
}

type memStore struct {
	mu          sync.Mutex
	instruments map[string]*market.InstrumentInfo
	deactivated map[string]bool
	bars        map[string]market.Bar
	quotes      []market.Quote
}

func newMemStore() *memStore {
	return &memStore{
		instruments: map[string]*market.InstrumentInfo{},
		deactivated: map[string]bool{},
		bars:        map[string]market.Bar{},
	}
}

func (s *memStore) Upsert(ctx context.Context, info *market.InstrumentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[info.Code] = info
	return nil
}

func (s *memStore) Deactivate(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instruments[code]; !ok {
		s.deactivated[code] = true
		return model.ErrNotFound
	}
	s.deactivated[code] = true
	return nil
}

func (s *memStore) FindOne(ctx context.Context, code string) (*model.Instrument, error) {
	return nil, model.ErrNotFound
}

func (s *memStore) Search(ctx context.Context, keyword string, limit int) ([]model.Instrument, error) {
	return nil, nil
}

func (s *memStore) ListActive(ctx context.Context) ([]model.Instrument, error) { return nil, nil }

func (s *memStore) CountByMarket(ctx context.Context) (map[string]int, error) { return nil, nil }

func (s *memStore) UpsertBar(ctx context.Context, bar market.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bar.Code + "/" + string(bar.Period) + "/" + bar.Timestamp.Format(time.RFC3339)
	s.bars[key] = bar
	return nil
}

type memBars struct{ store *memStore }

func (b memBars) Upsert(ctx context.Context, bar market.Bar) error {
	return b.store.UpsertBar(ctx, bar)
}

func (b memBars) UpsertMany(ctx context.Context, bars []market.Bar) (int, error) {
	for _, bar := range bars {
		if err := b.store.UpsertBar(ctx, bar); err != nil {
			return 0, err
		}
	}
	return len(bars), nil
}

func (b memBars) QueryRange(ctx context.Context, code string, period market.Period, from, to *time.Time) ([]market.Bar, error) {
	return nil, nil
}

func (b memBars) Recent(ctx context.Context, code string, period market.Period, limit int) ([]market.Bar, error) {
	return nil, nil
}

type memQuotes struct{ store *memStore }

func (q memQuotes) Insert(ctx context.Context, quote *market.Quote) error {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	q.store.quotes = append(q.store.quotes, *quote)
	return nil
}

func (q memQuotes) Latest(ctx context.Context, code string) (*market.Quote, error) {
	return nil, model.ErrNotFound
}

func (q memQuotes) LatestBatch(ctx context.Context, codes []string) (map[string]market.Quote, error) {
	return map[string]market.Quote{}, nil
}

func testSyncConf() config.SyncConf {
	return config.SyncConf{
		MaxBatch:          200,
		Workers:           4,
		PerCallTimeoutSec: 5,
		DelayMs:           0,
		BarCount:          10,
		Periods:           []string{"1d"},
	}
}

func newTestOrchestrator(t *testing.T, provider market.Provider, store *memStore, cfg config.SyncConf) *Orchestrator {
	t.Helper()
	o, err := New(provider, store, memBars{store}, memQuotes{store}, cfg)
	require.NoError(t, err)
	return o
}

func TestSyncHappyPath(t *testing.T) {
	provider := newStubProvider()
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, testSyncConf())

	result, err := o.Sync(context.Background(), []string{"000001", "600036", "000001"}, Options{})
	require.NoError(t, err)

	require.Equal(t, 2, result.Requested, "duplicates collapse before counting")
	require.Len(t, result.Succeeded, 2)
	require.Empty(t, result.Failed)
	require.Equal(t, 6, result.BarsWritten)
	require.Equal(t, 2, result.QuotesStored)
	require.Len(t, store.quotes, 2)
	require.NotNil(t, store.instruments["600036"])
}

func TestSyncRejectsEmptyAndOversizedBatches(t *testing.T) {
	provider := newStubProvider()
	store := newMemStore()
	cfg := testSyncConf()
	cfg.MaxBatch = 2
	o := newTestOrchestrator(t, provider, store, cfg)

	_, err := o.Sync(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrNoCodes)

	_, err = o.Sync(context.Background(), []string{"", "", ""}, Options{})
	require.ErrorIs(t, err, ErrNoCodes)

	_, err = o.Sync(context.Background(), []string{"1", "2", "3"}, Options{})
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestSyncIsolatesPerCodeFailures(t *testing.T) {
	provider := newStubProvider()
	provider.failCodes["600999"] = errors.New("upstream timeout")
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, testSyncConf())

	result, err := o.Sync(context.Background(), []string{"000001", "600999", "600036"}, Options{})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)
	require.Contains(t, result.Failed["600999"], "upstream timeout")
	require.NotContains(t, result.Succeeded, "600999")
}

func TestSyncDeactivatesUnknownCodes(t *testing.T) {
	provider := newStubProvider()
	provider.failCodes["999999"] = &market.ProviderError{
		Provider: "stub", Op: "fetch_info", Code: "999999", Err: market.ErrNotFound,
	}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, testSyncConf())

	result, err := o.Sync(context.Background(), []string{"999999"}, Options{})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	require.True(t, store.deactivated["999999"])
}

func TestSyncBoundsConcurrency(t *testing.T) {
	provider := newStubProvider()
	provider.delay = 20 * time.Millisecond
	store := newMemStore()
	cfg := testSyncConf()
	cfg.Workers = 3
	o := newTestOrchestrator(t, provider, store, cfg)

	codes := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		codes = append(codes, fmt.Sprintf("%06d", i+1))
	}
	result, err := o.Sync(context.Background(), codes, Options{})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 20)
	require.LessOrEqual(t, provider.maxInFlight.Load(), int32(3))
}

func TestSyncSkipBars(t *testing.T) {
	provider := newStubProvider()
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, testSyncConf())

	result, err := o.Sync(context.Background(), []string{"000001"}, Options{SkipBars: true})
	require.NoError(t, err)
	require.Equal(t, 0, result.BarsWritten)
	require.Equal(t, 1, result.QuotesStored)
	require.Empty(t, store.bars)
}

func TestSyncHonoursCancelledContext(t *testing.T) {
	provider := newStubProvider()
	provider.delay = 10 * time.Millisecond
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, testSyncConf())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Sync(ctx, []string{"000001", "600036"}, Options{})
	require.ErrorIs(t, err, context.Canceled)
}
