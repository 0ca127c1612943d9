package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"

	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/internal/model"
	"marketpulse-api/pkg/market"
	"marketpulse-api/pkg/market/indicators"
)

// ErrInsufficientData is returned when no bars exist for the requested series.
var ErrInsufficientData = errors.New("engine: insufficient bar data")

// Default indicator parameters, matching common A-share charting conventions.
const (
	rsiPeriod  = 14
	kdjPeriod  = 9
	bollPeriod = 20
	bollMult   = 2.0

	defaultLookback = 120
)

// IndicatorSet holds the latest derived values for one stock and period.
// Fields are nil while the underlying window is not yet filled.
type IndicatorSet struct {
	Code      string    `json:"code"`
	Period    string    `json:"period"`
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`

	MA5  *float64 `json:"ma5"`
	MA10 *float64 `json:"ma10"`
	MA20 *float64 `json:"ma20"`
	MA60 *float64 `json:"ma60"`

	MACD      *float64 `json:"macd"`
	Signal    *float64 `json:"signal"`
	Histogram *float64 `json:"histogram"`

	RSI *float64 `json:"rsi"`

	KDJK *float64 `json:"kdj_k"`
	KDJD *float64 `json:"kdj_d"`
	KDJJ *float64 `json:"kdj_j"`

	BollUpper  *float64 `json:"boll_upper"`
	BollMiddle *float64 `json:"boll_middle"`
	BollLower  *float64 `json:"boll_lower"`
}

// Engine derives technical indicators from stored bars.
type Engine struct {
	bars model.BarsModel
	cacheHelper
	ttl cachekeys.TTLSet
}

type cacheHelper struct {
	cache gocache.Cache
}

func (h cacheHelper) getCache(ctx context.Context, key string, v interface{}) bool {
	if h.cache == nil {
		return false
	}
	if err := h.cache.GetCtx(ctx, key, v); err != nil {
		if !h.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("get cache %s: %v", key, err)
		}
		return false
	}
	return true
}

func (h cacheHelper) setCache(ctx context.Context, key string, ttl time.Duration, v interface{}) {
	if h.cache == nil || ttl <= 0 {
		return
	}
	if err := h.cache.SetWithExpireCtx(ctx, key, v, ttl); err != nil {
		logx.WithContext(ctx).Errorf("set cache %s: %v", key, err)
	}
}

// New builds an indicator engine over the bars model. Cache is optional.
func New(bars model.BarsModel, cache gocache.Cache, ttl cachekeys.TTLSet) *Engine {
	return &Engine{
		bars:        bars,
		cacheHelper: cacheHelper{cache: cache},
		ttl:         ttl,
	}
}

// Compute derives the latest indicator set for one stock and period, reading
// the most recent lookback bars. lookback <= 0 uses the default window.
func (e *Engine) Compute(ctx context.Context, code string, period market.Period, lookback int) (*IndicatorSet, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("engine: unknown period %q", period)
	}
	if lookback <= 0 {
		lookback = defaultLookback
	}

	key := cachekeys.IndicatorsKey(code, string(period))
	var cached IndicatorSet
	if e.getCache(ctx, key, &cached) {
		return &cached, nil
	}

	bars, err := e.bars.Recent(ctx, code, period, lookback)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrInsufficientData
	}

	set := derive(bars)
	e.setCache(ctx, key, cachekeys.IndicatorsTTL(e.ttl), set)
	return set, nil
}

// derive computes all indicator series over the bars and keeps the last value
// of each; bars must be in ascending timestamp order.
func derive(bars []market.Bar) *IndicatorSet {
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		highs[i] = bar.High
		lows[i] = bar.Low
	}

	last := bars[len(bars)-1]
	set := &IndicatorSet{
		Code:      last.Code,
		Period:    string(last.Period),
		Timestamp: last.Timestamp,
		Close:     last.Close,
	}

	set.MA5 = lastValue(indicators.SMA(closes, 5))
	set.MA10 = lastValue(indicators.SMA(closes, 10))
	set.MA20 = lastValue(indicators.SMA(closes, 20))
	set.MA60 = lastValue(indicators.SMA(closes, 60))

	macd, signal, hist := indicators.MACD(closes)
	set.MACD = lastValue(macd)
	set.Signal = lastValue(signal)
	set.Histogram = lastValue(hist)

	set.RSI = lastValue(indicators.RSI(closes, rsiPeriod))

	k, d, j := indicators.KDJ(highs, lows, closes, kdjPeriod)
	set.KDJK = lastValue(k)
	set.KDJD = lastValue(d)
	set.KDJJ = lastValue(j)

	upper, middle, lower := indicators.Bollinger(closes, bollPeriod, bollMult)
	set.BollUpper = lastValue(upper)
	set.BollMiddle = lastValue(middle)
	set.BollLower = lastValue(lower)

	return set
}

// lastValue picks the final element of a series, mapping NaN to nil.
func lastValue(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
