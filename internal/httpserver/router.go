package httpserver

import (
	"net/http"
	"time"

	"paperbroker/internal/admin"
	"paperbroker/internal/auth"
	"paperbroker/internal/funds"
	"paperbroker/internal/httputil"
	"paperbroker/internal/marketdata"
	"paperbroker/internal/orders"
	"paperbroker/internal/positions"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Auth      *auth.Handler
	AuthSvc   *auth.Service
	Orders    *orders.Handler
	Positions *positions.Handler
	Funds     *funds.Handler
	Market    *marketdata.Handler
	Admin     *admin.Handler

	InternalToken string
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(securityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/admin/login", h.Auth.AdminLogin)

		r.Get("/market/instruments", h.Market.Instruments)
		r.Method(http.MethodGet, "/market/ws", h.Market.WS)

		// User-authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthSvc.WithAuth)

			r.Post("/orders", h.Orders.Place)
			r.Post("/orders/quote", h.Orders.Quote)
			r.Get("/orders", h.Orders.List)
			r.Get("/orders/{id}", h.Orders.Get)
			r.Delete("/orders/{id}", h.Orders.Cancel)

			r.Get("/positions", h.Positions.List)
			r.Get("/positions/{id}", h.Positions.Get)
			r.Post("/positions/{id}/close", h.Orders.Close)

			r.Get("/funds", h.Funds.Get)
			r.Post("/funds/deposit", h.Funds.Deposit)
			r.Post("/funds/withdraw", h.Funds.Withdraw)
			r.Get("/transactions", h.Funds.Transactions)
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthSvc.WithAdminAuth)

			r.Patch("/admin/positions/{id}", h.Admin.PatchPosition)
			r.Post("/admin/funds/adjust", h.Admin.AdjustFunds)
		})

		// Process-to-process ingest from the market data subsystem.
		r.Method(http.MethodPost, "/internal/market/tick",
			auth.WithInternalToken(h.InternalToken, http.HandlerFunc(h.Market.Tick)))
	})

	return r
}
