package marketdata

import (
	"net/http"
	"strings"

	"paperbroker/internal/httputil"

	"github.com/shopspring/decimal"
)

type Handler struct {
	store *Store
	bus   *Bus
	WS    *WSHandler
}

func NewHandler(store *Store, bus *Bus, ws *WSHandler) *Handler {
	return &Handler{store: store, bus: bus, WS: ws}
}

func (h *Handler) Instruments(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type tickRequest struct {
	InstrumentID string `json:"instrument_id"`
	Price        string `json:"price"`
}

// Tick ingests a last-traded-price update from the market-data subsystem
// (internal-token authenticated) and fans it out to websocket subscribers.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	req.InstrumentID = strings.TrimSpace(req.InstrumentID)
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.GreaterThan(decimal.Zero) || req.InstrumentID == "" {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, "instrument_id and positive price required")
		return
	}
	inst, err := h.store.UpdateLTP(r.Context(), req.InstrumentID, price)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeInvalidInstrument, "instrument not found")
		return
	}
	h.bus.Publish(Tick{
		Type:         "quote",
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		LTP:          price.String(),
	})
	httputil.WriteJSON(w, http.StatusOK, inst)
}
