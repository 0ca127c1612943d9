package eastmoney

// quoteResponse is the envelope returned by the stock/get endpoint.
// A null data object means the code is not listed.
type quoteResponse struct {
	Data *quoteData `json:"data"`
}

// quoteData carries the numbered quote fields Eastmoney exposes. With
// fltt=2 the prices arrive unscaled.
type quoteData struct {
	Current   float64 `json:"f43"`
	High      float64 `json:"f44"`
	Low       float64 `json:"f45"`
	Open      float64 `json:"f46"`
	Volume    float64 `json:"f47"`
	Turnover  float64 `json:"f48"`
	Code      string  `json:"f57"`
	Name      string  `json:"f58"`
	PrevClose float64 `json:"f60"`
	Industry  string  `json:"f127"`
}

// klineResponse is the envelope returned by the kline/get endpoint.
type klineResponse struct {
	Data *klineData `json:"data"`
}

type klineData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}
