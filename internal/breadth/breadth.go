package breadth

import (
	"context"
	"math"

	"marketpulse-api/internal/model"
)

// Summary aggregates advance/decline counts over a set of stocks.
type Summary struct {
	Total     int     `json:"total"`
	UpCount   int     `json:"up_count"`
	DownCount int     `json:"down_count"`
	FlatCount int     `json:"flat_count"`
	UpRatio   float64 `json:"up_ratio"` // percent, 0 when no quotes
}

// Summarizer computes market breadth from stored latest quotes.
type Summarizer struct {
	quotes model.QuotesModel
}

// New builds a breadth summarizer over the quotes model.
func New(quotes model.QuotesModel) *Summarizer {
	return &Summarizer{quotes: quotes}
}

// Summarize counts risers and fallers among the given codes by their latest
// quote. Codes without any stored quote are excluded from all counts.
func (s *Summarizer) Summarize(ctx context.Context, codes []string) (*Summary, error) {
	latest, err := s.quotes.LatestBatch(ctx, codes)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, quote := range latest {
		summary.Total++
		switch {
		case quote.ChangePercent > 0:
			summary.UpCount++
		case quote.ChangePercent < 0:
			summary.DownCount++
		default:
			summary.FlatCount++
		}
	}
	if summary.Total > 0 {
		ratio := float64(summary.UpCount) / float64(summary.Total) * 100
		summary.UpRatio = math.Round(ratio*100) / 100
	}
	return summary, nil
}
