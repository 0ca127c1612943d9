package handler

import (
	"time"

	"marketpulse-api/internal/engine"
	"marketpulse-api/internal/types"
	"marketpulse-api/pkg/market"
)

func toQuoteResp(q *market.Quote) *types.QuoteResp {
	return &types.QuoteResp{
		Code:          q.Code,
		Name:          q.Name,
		Current:       q.Current,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		PrevClose:     q.PrevClose,
		ChangeAmount:  q.ChangeAmount,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Turnover:      q.Turnover,
		At:            q.At.UTC().Format(time.RFC3339),
	}
}

func toBarsResp(code, period string, bars []market.Bar) *types.BarsResp {
	resp := &types.BarsResp{Code: code, Period: period, Bars: make([]types.BarItem, 0, len(bars))}
	for _, b := range bars {
		resp.Bars = append(resp.Bars, types.BarItem{
			Timestamp:     b.Timestamp.UTC().Format(time.RFC3339),
			Open:          b.Open,
			Close:         b.Close,
			High:          b.High,
			Low:           b.Low,
			Volume:        b.Volume,
			Turnover:      b.Turnover,
			ChangeAmount:  b.ChangeAmount,
			ChangePercent: b.ChangePercent,
		})
	}
	return resp
}

func toIndicatorsResp(set *engine.IndicatorSet) *types.IndicatorsResp {
	return &types.IndicatorsResp{
		Code:      set.Code,
		Period:    set.Period,
		Timestamp: set.Timestamp.UTC().Format(time.RFC3339),
		Close:     set.Close,
		MA5:       set.MA5,
		MA10:      set.MA10,
		MA20:      set.MA20,
		MA60:      set.MA60,
		MACD:      set.MACD,
		Signal:    set.Signal,
		Histogram: set.Histogram,
		RSI:       set.RSI,
		KDJK:      set.KDJK,
		KDJD:      set.KDJD,
		KDJJ:      set.KDJJ,
		BollUpper: set.BollUpper,
		BollMid:   set.BollMiddle,
		BollLower: set.BollLower,
	}
}
