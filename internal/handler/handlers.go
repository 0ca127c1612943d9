package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"

	"marketpulse-api/internal/assistant"
	cachekeys "marketpulse-api/internal/cache"
	"marketpulse-api/internal/engine"
	"marketpulse-api/internal/ingest"
	"marketpulse-api/internal/model"
	"marketpulse-api/internal/svc"
	"marketpulse-api/internal/types"
	"marketpulse-api/pkg/llm"
	"marketpulse-api/pkg/market"
)

var errServiceUnavailable = errors.New("service not configured")

// badRequestError marks client input errors so writeError can map them to a
// 400 without inspecting message text. The message passes through unchanged.
type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }

func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

// SyncHandler triggers one ingestion batch for the requested codes.
func SyncHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SyncReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.Orchestrator == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}

		periods := make([]market.Period, 0, len(req.Periods))
		for _, p := range req.Periods {
			period := market.Period(p)
			if !period.Valid() {
				writeError(w, r, badRequest(errors.New("unknown period "+p)))
				return
			}
			periods = append(periods, period)
		}

		result, err := serverCtx.Orchestrator.Sync(r.Context(), req.Codes, ingest.Options{
			Trigger:  "api",
			Periods:  periods,
			BarCount: req.BarCount,
			SkipBars: req.SkipBars,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		httpx.OkJsonCtx(r.Context(), w, &types.SyncResp{
			Requested:    result.Requested,
			Succeeded:    result.Succeeded,
			Failed:       result.Failed,
			BarsWritten:  result.BarsWritten,
			QuotesStored: result.QuotesStored,
			DurationMs:   result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		})
	}
}

// BarsHandler serves a stored kline window.
func BarsHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.BarsReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.BarsModel == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}
		period := market.Period(req.Period)
		if !period.Valid() {
			writeError(w, r, badRequest(errors.New("unknown period "+req.Period)))
			return
		}

		var bars []market.Bar
		var err error
		if req.From != "" || req.To != "" {
			var from, to *time.Time
			if from, err = parseDate(req.From); err != nil {
				writeError(w, r, err)
				return
			}
			if to, err = parseDate(req.To); err != nil {
				writeError(w, r, err)
				return
			}
			bars, err = serverCtx.BarsModel.QueryRange(r.Context(), req.Code, period, from, to)
		} else {
			bars, err = serverCtx.BarsModel.Recent(r.Context(), req.Code, period, req.Limit)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		httpx.OkJsonCtx(r.Context(), w, toBarsResp(req.Code, string(period), bars))
	}
}

// QuoteHandler serves the latest stored quote.
func QuoteHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.QuoteReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.QuotesModel == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}

		quote, err := serverCtx.QuotesModel.Latest(r.Context(), req.Code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, toQuoteResp(quote))
	}
}

// IndicatorsHandler serves derived indicator values.
func IndicatorsHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.IndicatorsReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.Engine == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}

		set, err := serverCtx.Engine.Compute(r.Context(), req.Code, market.Period(req.Period), req.Lookback)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, toIndicatorsResp(set))
	}
}

// SummaryHandler serves the market breadth summary.
func SummaryHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SummaryReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.Breadth == nil || serverCtx.InstrumentsModel == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}

		var markets map[string]int
		codes := splitCodes(req.Codes)
		wholeMarket := len(codes) == 0
		if wholeMarket && serverCtx.Cache != nil {
			var cached types.SummaryResp
			if err := serverCtx.Cache.GetCtx(r.Context(), cachekeys.BreadthSummaryKey(), &cached); err == nil {
				httpx.OkJsonCtx(r.Context(), w, &cached)
				return
			}
		}
		if wholeMarket {
			active, err := serverCtx.InstrumentsModel.ListActive(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			for _, inst := range active {
				codes = append(codes, inst.Code)
			}
			// Whole-market view also reports how instruments spread across
			// exchanges; explicit code lists skip it.
			if markets, err = serverCtx.InstrumentsModel.CountByMarket(r.Context()); err != nil {
				writeError(w, r, err)
				return
			}
		}

		summary, err := serverCtx.Breadth.Summarize(r.Context(), codes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := &types.SummaryResp{
			Total:     summary.Total,
			UpCount:   summary.UpCount,
			DownCount: summary.DownCount,
			FlatCount: summary.FlatCount,
			UpRatio:   summary.UpRatio,
			Markets:   markets,
		}
		if wholeMarket && serverCtx.Cache != nil {
			ttl := cachekeys.BreadthSummaryTTL(serverCtx.TTL)
			if err := serverCtx.Cache.SetWithExpireCtx(r.Context(), cachekeys.BreadthSummaryKey(), resp, ttl); err != nil {
				logx.WithContext(r.Context()).Errorf("cache breadth summary: %v", err)
			}
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

// SearchHandler looks up instruments by code prefix or name fragment.
func SearchHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SearchReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.InstrumentsModel == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}

		items, err := serverCtx.InstrumentsModel.Search(r.Context(), req.Keyword, req.Limit)
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := &types.SearchResp{Items: make([]types.InstrumentItem, 0, len(items))}
		for _, inst := range items {
			resp.Items = append(resp.Items, types.InstrumentItem{
				Code:     inst.Code,
				Name:     inst.Name,
				Market:   inst.Market,
				Industry: inst.Industry,
				Active:   inst.Active,
			})
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

// ChatHandler runs one grounded assistant turn.
func ChatHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.Assistant == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}

		messages := make([]llm.Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
		}

		out, err := serverCtx.Assistant.Chat(r.Context(), assistant.ChatInput{
			Code:     req.Code,
			Messages: messages,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, &types.ChatResp{
			Reply:   out.Reply,
			Context: out.Context,
			Tokens:  out.Usage.TotalTokens,
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound), market.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, ingest.ErrNoCodes),
		errors.Is(err, ingest.ErrBatchTooLarge),
		errors.Is(err, assistant.ErrNoMessages):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errServiceUnavailable):
		status = http.StatusServiceUnavailable
	case isBadRequest(err):
		status = http.StatusBadRequest
	}
	httpx.WriteJsonCtx(r.Context(), w, status, map[string]string{"error": err.Error()})
}

func isBadRequest(err error) bool {
	var br badRequestError
	return errors.As(err, &br)
}

func splitCodes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return nil, badRequest(errors.New("invalid date " + raw + ", want YYYY-MM-DD"))
	}
	return &t, nil
}
