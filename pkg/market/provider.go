package market

import (
	"context"
	"time"
)

// Provider exposes upstream market data for one instrument per call.
// Implementations carry no interesting state beyond connection plumbing;
// all retry policy above the HTTP layer belongs to callers.
type Provider interface {
	// FetchInfo returns instrument metadata, or ErrNotFound for unlisted codes.
	FetchInfo(ctx context.Context, code string) (*InstrumentInfo, error)
	// FetchQuote returns the single latest quote for the instrument.
	FetchQuote(ctx context.Context, code string) (*Quote, error)
	// FetchBars returns up to count OHLCV bars in ascending timestamp order.
	// The window may come back shorter than requested.
	FetchBars(ctx context.Context, code string, period Period, count int) ([]Bar, error)
}

// Period identifies the bar aggregation interval.
type Period string

const (
	Period1d Period = "1d"
	Period1w Period = "1w"
	Period1M Period = "1M"
)

// Valid reports whether the period is one the providers understand.
func (p Period) Valid() bool {
	switch p {
	case Period1d, Period1w, Period1M:
		return true
	}
	return false
}

// InstrumentInfo describes a listed instrument.
type InstrumentInfo struct {
	Code     string // stable unique identifier, e.g. "000001"
	Name     string
	Market   string // exchange segment, e.g. "SZ", "SH"
	Industry string
	Active   bool
}

// Quote is the latest observed price snapshot for an instrument.
type Quote struct {
	Code          string
	Name          string
	Current       float64
	Open          float64
	High          float64
	Low           float64
	PrevClose     float64
	ChangeAmount  float64 // Current - PrevClose
	ChangePercent float64
	Volume        float64
	Turnover      float64
	At            time.Time
}

// Bar is one OHLCV observation for (Code, Period) at Timestamp.
type Bar struct {
	Code          string
	Period        Period
	Timestamp     time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	Turnover      float64
	ChangeAmount  float64
	ChangePercent float64
}

// FillDerived recomputes the change fields from open/close. ChangePercent
// is zero when the open is zero.
func (b *Bar) FillDerived() {
	b.ChangeAmount = b.Close - b.Open
	if b.Open != 0 {
		b.ChangePercent = (b.Close - b.Open) / b.Open * 100
	} else {
		b.ChangePercent = 0
	}
}
