package positions

import (
	"context"
	"net/http"

	"paperbroker/internal/auth"
	"paperbroker/internal/httputil"
	"paperbroker/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Feed supplies marks for the read path. Satisfied by the market data
// store.
type Feed interface {
	LastTradedPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)
	PreviousClose(ctx context.Context, instrumentID string) (decimal.Decimal, error)
}

type Handler struct {
	store *Store
	feed  Feed
}

func NewHandler(store *Store, feed Feed) *Handler {
	return &Handler{store: store, feed: feed}
}

// List returns the user's positions with P&L marked against the live
// price at read time. The persisted unrealized_pnl is the worker's last
// write; the read path recomputes so the response is never staler than
// the feed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	list, err := h.store.ListByUser(r.Context(), auth.UserID(r.Context()), openOnly)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
		return
	}
	for i := range list {
		h.mark(r.Context(), &list[i])
	}
	if list == nil {
		list = []model.Position{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	pos, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil || pos.UserID != auth.UserID(r.Context()) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "position not found")
		return
	}
	h.mark(r.Context(), &pos)
	httputil.WriteJSON(w, http.StatusOK, pos)
}

// mark refreshes the in-memory P&L fields from the feed; on feed errors
// the stored values stand.
func (h *Handler) mark(ctx context.Context, p *model.Position) {
	if p.Quantity.IsZero() {
		return
	}
	ltp, err := h.feed.LastTradedPrice(ctx, p.InstrumentID)
	if err != nil {
		return
	}
	p.UnrealizedPnL = UnrealizedPnL(p.Quantity, p.AveragePrice, ltp)
	if prev, err := h.feed.PreviousClose(ctx, p.InstrumentID); err == nil {
		p.DayPnL = UnrealizedPnL(p.Quantity, prev, ltp)
	}
}
