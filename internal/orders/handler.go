package orders

import (
	"errors"
	"net/http"
	"strconv"

	"paperbroker/internal/auth"
	"paperbroker/internal/funds"
	"paperbroker/internal/httputil"
	"paperbroker/internal/marketdata"
	"paperbroker/internal/model"
	"paperbroker/internal/positions"
	"paperbroker/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	InstrumentID string           `json:"instrument_id"`
	Symbol       string           `json:"symbol"`
	Segment      string           `json:"segment"`
	Product      string           `json:"product"`
	Side         string           `json:"side"`
	Type         string           `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        *decimal.Decimal `json:"price"`
}

func (r placeOrderRequest) toServiceRequest(userID string) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:       userID,
		InstrumentID: r.InstrumentID,
		Symbol:       r.Symbol,
		Segment:      types.Segment(r.Segment),
		Product:      types.ProductType(r.Product),
		Side:         types.OrderSide(r.Side),
		Type:         types.OrderType(r.Type),
		Quantity:     r.Quantity,
		Price:        r.Price,
	}
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	res, err := h.svc.PlaceOrder(r.Context(), req.toServiceRequest(auth.UserID(r.Context())))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// Quote prices an order without placing it.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	quote, err := h.svc.QuoteOrder(r.Context(), req.toServiceRequest(auth.UserID(r.Context())))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quote)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := types.OrderStatus(r.URL.Query().Get("status"))
	list, err := h.svc.ListOrders(r.Context(), auth.UserID(r.Context()), status, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
		return
	}
	if list == nil {
		list = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil || o.UserID != auth.UserID(r.Context()) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "order not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	err := h.svc.CancelOrder(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(types.OrderStatusCancelled)})
}

// Close squares off an open position at market.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ClosePosition(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func writeOrderError(w http.ResponseWriter, err error) {
	var verr ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, verr.Msg)
	case errors.Is(err, funds.ErrInsufficientMargin):
		httputil.WriteError(w, http.StatusUnprocessableEntity, httputil.CodeInsufficientMargin, "insufficient margin")
	case errors.Is(err, ErrInvalidInstrument):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeInvalidInstrument, "invalid instrument")
	case errors.Is(err, marketdata.ErrPriceUnavailable):
		httputil.WriteError(w, http.StatusUnprocessableEntity, httputil.CodePriceUnavailable, "no price available")
	case errors.Is(err, ErrOrderNotPending):
		httputil.WriteError(w, http.StatusConflict, httputil.CodeOrderNotPending, "order is not pending")
	case errors.Is(err, ErrPositionNotOpen):
		httputil.WriteError(w, http.StatusConflict, httputil.CodeValidation, "position is not open")
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, positions.ErrPositionNotFound):
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "not found")
	case errors.Is(err, ErrUnfillable):
		httputil.WriteError(w, http.StatusUnprocessableEntity, httputil.CodePriceUnavailable, "order cannot be filled")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
	}
}
