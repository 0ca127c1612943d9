package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"
	"golang.org/x/sync/errgroup"

	"marketpulse-api/internal/engine"
	"marketpulse-api/internal/model"
	"marketpulse-api/internal/svc"
	"marketpulse-api/internal/types"
	"marketpulse-api/pkg/market"
)

// DashboardHandler assembles quote, indicators, and recent bars for one
// instrument in a single response. The three reads are independent, so
// they run concurrently; a missing quote or a too-short bar history
// leaves that section null rather than failing the whole view.
func DashboardHandler(serverCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.DashboardReq
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		if serverCtx.QuotesModel == nil || serverCtx.BarsModel == nil || serverCtx.Engine == nil {
			writeError(w, r, errServiceUnavailable)
			return
		}
		period := market.Period(req.Period)
		if !period.Valid() {
			writeError(w, r, badRequest(errors.New("unknown period "+req.Period)))
			return
		}

		var resp types.DashboardResp
		g, ctx := errgroup.WithContext(r.Context())

		g.Go(func() error {
			quote, err := serverCtx.QuotesModel.Latest(ctx, req.Code)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			resp.Quote = toQuoteResp(quote)
			return nil
		})
		g.Go(func() error {
			set, err := serverCtx.Engine.Compute(ctx, req.Code, period, 0)
			if errors.Is(err, engine.ErrInsufficientData) {
				return nil
			}
			if err != nil {
				return err
			}
			resp.Indicators = toIndicatorsResp(set)
			return nil
		})
		g.Go(func() error {
			bars, err := serverCtx.BarsModel.Recent(ctx, req.Code, period, req.BarLimit)
			if err != nil {
				return err
			}
			resp.Bars = toBarsResp(req.Code, string(period), bars)
			return nil
		})

		if err := g.Wait(); err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, &resp)
	}
}
