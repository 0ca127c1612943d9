// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package types

type SyncReq struct {
	Codes    []string `json:"codes"`
	Periods  []string `json:"periods,optional"`
	BarCount int      `json:"barCount,optional"`
	SkipBars bool     `json:"skipBars,optional"`
}

type SyncResp struct {
	Requested    int               `json:"requested"`
	Succeeded    []string          `json:"succeeded"`
	Failed       map[string]string `json:"failed"`
	BarsWritten  int               `json:"barsWritten"`
	QuotesStored int               `json:"quotesStored"`
	DurationMs   int64             `json:"durationMs"`
}

type BarsReq struct {
	Code   string `path:"code"`
	Period string `form:"period,default=1d"`
	Limit  int    `form:"limit,default=100"`
	From   string `form:"from,optional"` // YYYY-MM-DD
	To     string `form:"to,optional"`   // YYYY-MM-DD
}

type BarItem struct {
	Timestamp     string  `json:"timestamp"`
	Open          float64 `json:"open"`
	Close         float64 `json:"close"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Volume        float64 `json:"volume"`
	Turnover      float64 `json:"turnover"`
	ChangeAmount  float64 `json:"changeAmount"`
	ChangePercent float64 `json:"changePercent"`
}

type BarsResp struct {
	Code   string    `json:"code"`
	Period string    `json:"period"`
	Bars   []BarItem `json:"bars"`
}

type QuoteReq struct {
	Code string `path:"code"`
}

type QuoteResp struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Current       float64 `json:"current"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PrevClose     float64 `json:"prevClose"`
	ChangeAmount  float64 `json:"changeAmount"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume"`
	Turnover      float64 `json:"turnover"`
	At            string  `json:"at"`
}

type IndicatorsReq struct {
	Code     string `path:"code"`
	Period   string `form:"period,default=1d"`
	Lookback int    `form:"lookback,default=120"`
}

type IndicatorsResp struct {
	Code      string   `json:"code"`
	Period    string   `json:"period"`
	Timestamp string   `json:"timestamp"`
	Close     float64  `json:"close"`
	MA5       *float64 `json:"ma5"`
	MA10      *float64 `json:"ma10"`
	MA20      *float64 `json:"ma20"`
	MA60      *float64 `json:"ma60"`
	MACD      *float64 `json:"macd"`
	Signal    *float64 `json:"signal"`
	Histogram *float64 `json:"histogram"`
	RSI       *float64 `json:"rsi"`
	KDJK      *float64 `json:"kdjK"`
	KDJD      *float64 `json:"kdjD"`
	KDJJ      *float64 `json:"kdjJ"`
	BollUpper *float64 `json:"bollUpper"`
	BollMid   *float64 `json:"bollMiddle"`
	BollLower *float64 `json:"bollLower"`
}

type SummaryReq struct {
	Codes string `form:"codes,optional"` // comma separated; empty means all active
}

type SummaryResp struct {
	Total     int            `json:"total"`
	UpCount   int            `json:"upCount"`
	DownCount int            `json:"downCount"`
	FlatCount int            `json:"flatCount"`
	UpRatio   float64        `json:"upRatio"`
	Markets   map[string]int `json:"markets,omitempty"`
}

type SearchReq struct {
	Keyword string `form:"keyword"`
	Limit   int    `form:"limit,default=20"`
}

type InstrumentItem struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Market   string `json:"market"`
	Industry string `json:"industry"`
	Active   bool   `json:"active"`
}

type SearchResp struct {
	Items []InstrumentItem `json:"items"`
}

type DashboardReq struct {
	Code     string `path:"code"`
	Period   string `form:"period,default=1d"`
	BarLimit int    `form:"barLimit,default=60"`
}

type DashboardResp struct {
	Quote      *QuoteResp      `json:"quote"`
	Indicators *IndicatorsResp `json:"indicators"`
	Bars       *BarsResp       `json:"bars"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatReq struct {
	Code     string        `json:"code,optional"`
	Messages []ChatMessage `json:"messages"`
}

type ChatResp struct {
	Reply   string `json:"reply"`
	Context string `json:"context,omitempty"`
	Tokens  int    `json:"tokens"`
}
