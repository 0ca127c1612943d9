package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/internal/config"
	"marketpulse-api/internal/model"
	"marketpulse-api/pkg/journal"
	"marketpulse-api/pkg/market"
)

var (
	// ErrNoCodes is returned when a sync request carries no stock codes.
	ErrNoCodes = errors.New("ingest: no codes to sync")
	// ErrBatchTooLarge is returned when a request exceeds the configured batch cap.
	ErrBatchTooLarge = errors.New("ingest: batch exceeds configured maximum")
	// ErrSyncInProgress is returned when another sync run holds the lock.
	ErrSyncInProgress = errors.New("ingest: sync already in progress")
)

// Options carries per-run overrides; zero values fall back to config.
type Options struct {
	// Trigger records who started the run: api, daemon or cli.
	Trigger string
	// Periods limits which kline periods to backfill.
	Periods []market.Period
	// BarCount overrides how many bars to fetch per period.
	BarCount int
	// SkipBars syncs info and quotes only.
	SkipBars bool
}

// BatchResult reports the outcome of one sync run. A code appears either in
// Succeeded or as a key in Failed, never both.
type BatchResult struct {
	Requested    int               `json:"requested"`
	Succeeded    []string          `json:"succeeded"`
	Failed       map[string]string `json:"failed"`
	BarsWritten  int               `json:"bars_written"`
	QuotesStored int               `json:"quotes_stored"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// Orchestrator pulls instrument metadata, realtime quotes and kline bars from
// the upstream provider and persists them, fanning work out to a bounded pool.
type Orchestrator struct {
	provider    market.Provider
	instruments model.InstrumentsModel
	bars        model.BarsModel
	quotes      model.QuotesModel
	redis       *redis.Redis
	journal     *journal.Writer
	cfg         config.SyncConf
	ttl         cachekeys.TTLSet
}

// Option configures optional orchestrator behaviour.
type Option func(*Orchestrator)

// WithRedis enables the overlap guard lock. A nil client disables it.
func WithRedis(client *redis.Redis) Option {
	return func(o *Orchestrator) {
		o.redis = client
	}
}

// WithJournal records each run to a journal directory.
func WithJournal(w *journal.Writer) Option {
	return func(o *Orchestrator) {
		o.journal = w
	}
}

// WithTTL overrides the cache TTL classes used for run bookkeeping.
func WithTTL(ttl cachekeys.TTLSet) Option {
	return func(o *Orchestrator) {
		o.ttl = ttl
	}
}

// New wires an orchestrator. The provider and the three models are required.
func New(provider market.Provider, instruments model.InstrumentsModel, bars model.BarsModel,
	quotes model.QuotesModel, cfg config.SyncConf, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New("ingest: provider is required")
	}
	if instruments == nil || bars == nil || quotes == nil {
		return nil, errors.New("ingest: storage models are required")
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.PerCallTimeoutSec <= 0 {
		cfg.PerCallTimeoutSec = 30
	}
	if cfg.BarCount <= 0 {
		cfg.BarCount = 100
	}

	o := &Orchestrator{
		provider:    provider,
		instruments: instruments,
		bars:        bars,
		quotes:      quotes,
		cfg:         cfg,
		ttl:         cachekeys.NewTTLSet(config.CacheTTL{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type codeResult struct {
	code   string
	bars   int
	quotes int
	err    error
}

// Sync runs one batch. Codes are de-duplicated preserving first occurrence.
// Per-code failures never abort the batch; they land in BatchResult.Failed.
func (o *Orchestrator) Sync(ctx context.Context, codes []string, opts Options) (*BatchResult, error) {
	codes = dedupe(codes)
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}
	if len(codes) > o.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(codes), o.cfg.MaxBatch)
	}

	unlock, err := o.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	periods := opts.Periods
	if len(periods) == 0 {
		periods = o.configuredPeriods()
	}
	barCount := opts.BarCount
	if barCount <= 0 {
		barCount = o.cfg.BarCount
	}

	result := &BatchResult{
		Requested: len(codes),
		Succeeded: make([]string, 0, len(codes)),
		Failed:    make(map[string]string),
		StartedAt: time.Now().UTC(),
	}

	jobs := make(chan string)
	results := make(chan codeResult, len(codes))

	workers := o.cfg.Workers
	if workers > len(codes) {
		workers = len(codes)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for code := range jobs {
				res := codeResult{code: code}
				res.bars, res.quotes, res.err = o.syncOne(ctx, code, periods, barCount, opts.SkipBars)
				results <- res
				if !sleepWithContext(ctx, time.Duration(o.cfg.DelayMs)*time.Millisecond) {
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, code := range codes {
			select {
			case <-ctx.Done():
				return
			case jobs <- code:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			result.Failed[res.code] = res.err.Error()
			logx.WithContext(ctx).Errorw("sync code failed",
				logx.Field("code", res.code),
				logx.Field("error", res.err.Error()),
			)
			continue
		}
		result.Succeeded = append(result.Succeeded, res.code)
		result.BarsWritten += res.bars
		result.QuotesStored += res.quotes
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.FinishedAt = time.Now().UTC()
	logx.WithContext(ctx).Infow("sync batch done",
		logx.Field("requested", result.Requested),
		logx.Field("succeeded", len(result.Succeeded)),
		logx.Field("failed", len(result.Failed)),
		logx.Field("bars_written", result.BarsWritten),
		logx.Field("duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds()),
	)

	o.writeJournal(opts.Trigger, result)
	o.markLastRun(ctx, result.FinishedAt)
	return result, nil
}

// markLastRun records when the latest batch finished, for dashboards and the
// daemon's staleness checks.
func (o *Orchestrator) markLastRun(ctx context.Context, at time.Time) {
	if o.redis == nil {
		return
	}
	ttl := int(cachekeys.SyncLastRunTTL(o.ttl).Seconds())
	err := o.redis.SetexCtx(ctx, cachekeys.SyncLastRunKey(), at.Format(time.RFC3339), ttl)
	if err != nil {
		logx.WithContext(ctx).Errorf("record last sync run: %v", err)
	}
}

// syncOne fetches info, quote and bars for one code sequentially, each call
// under its own timeout.
func (o *Orchestrator) syncOne(ctx context.Context, code string, periods []market.Period, barCount int, skipBars bool) (int, int, error) {
	info, err := o.fetchInfo(ctx, code)
	if err != nil {
		if market.IsNotFound(err) {
			// Delisted or unknown: mark inactive so the daemon stops retrying it.
			if derr := o.instruments.Deactivate(ctx, code); derr != nil && !errors.Is(derr, model.ErrNotFound) {
				logx.WithContext(ctx).Errorf("deactivate %s: %v", code, derr)
			}
		}
		return 0, 0, err
	}
	if err := o.instruments.Upsert(ctx, info); err != nil {
		return 0, 0, err
	}

	quotes := 0
	quote, err := o.fetchQuote(ctx, code)
	if err != nil {
		return 0, 0, err
	}
	if err := o.quotes.Insert(ctx, quote); err != nil {
		return 0, 0, err
	}
	quotes++

	if skipBars {
		return 0, quotes, nil
	}

	written := 0
	for _, period := range periods {
		bars, err := o.fetchBars(ctx, code, period, barCount)
		if err != nil {
			return written, quotes, err
		}
		n, err := o.bars.UpsertMany(ctx, bars)
		written += n
		if err != nil {
			return written, quotes, err
		}
	}
	return written, quotes, nil
}

func (o *Orchestrator) fetchInfo(ctx context.Context, code string) (*market.InstrumentInfo, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()
	return o.provider.FetchInfo(callCtx, code)
}

func (o *Orchestrator) fetchQuote(ctx context.Context, code string) (*market.Quote, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()
	return o.provider.FetchQuote(callCtx, code)
}

func (o *Orchestrator) fetchBars(ctx context.Context, code string, period market.Period, count int) ([]market.Bar, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()
	return o.provider.FetchBars(callCtx, code, period, count)
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(o.cfg.PerCallTimeoutSec)*time.Second)
}

func (o *Orchestrator) configuredPeriods() []market.Period {
	if len(o.cfg.Periods) == 0 {
		return []market.Period{market.Period1d, market.Period1w, market.Period1M}
	}
	periods := make([]market.Period, 0, len(o.cfg.Periods))
	for _, p := range o.cfg.Periods {
		periods = append(periods, market.Period(p))
	}
	return periods
}

// acquireLock takes the Redis overlap guard. Without Redis, runs are unguarded.
func (o *Orchestrator) acquireLock(ctx context.Context) (func(), error) {
	if o.redis == nil {
		return func() {}, nil
	}
	key := cachekeys.SyncLockKey()
	// Lock TTL outlives any reasonable batch only as a crash backstop.
	ttl := o.cfg.PerCallTimeoutSec*2 + 30
	ok, err := o.redis.SetnxExCtx(ctx, key, "1", ttl)
	if err != nil {
		return nil, fmt.Errorf("ingest: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return func() {
		if _, err := o.redis.DelCtx(context.Background(), key); err != nil {
			logx.Errorf("release sync lock: %v", err)
		}
	}, nil
}

func (o *Orchestrator) writeJournal(trigger string, result *BatchResult) {
	if o.journal == nil {
		return
	}
	rec := &journal.RunRecord{
		Timestamp:    result.StartedAt,
		Trigger:      trigger,
		Requested:    result.Requested,
		Succeeded:    result.Succeeded,
		Failed:       result.Failed,
		BarsWritten:  result.BarsWritten,
		QuotesStored: result.QuotesStored,
		DurationMs:   result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
	if _, err := o.journal.WriteRun(rec); err != nil {
		logx.Errorf("write sync journal: %v", err)
	}
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
