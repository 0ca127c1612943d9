// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"marketpulse-api/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodPost,
				Path:    "/api/v1/market/sync",
				Handler: SyncHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/v1/market/bars/:code",
				Handler: BarsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/v1/market/quote/:code",
				Handler: QuoteHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/v1/market/indicators/:code",
				Handler: IndicatorsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/v1/market/summary",
				Handler: SummaryHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/v1/market/search",
				Handler: SearchHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/v1/market/dashboard/:code",
				Handler: DashboardHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/api/v1/assistant/chat",
				Handler: ChatHandler(serverCtx),
			},
		},
	)
}
