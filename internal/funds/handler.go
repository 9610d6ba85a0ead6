package funds

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"paperbroker/internal/auth"
	"paperbroker/internal/httputil"
	"paperbroker/internal/model"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.GetAccount(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "trading account not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

type fundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.fundOp(w, r, true)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.fundOp(w, r, false)
}

func (h *Handler) fundOp(w http.ResponseWriter, r *http.Request, credit bool) {
	var req fundRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, "amount must be positive")
		return
	}
	userID := auth.UserID(r.Context())
	var acc model.TradingAccount
	var err error
	if credit {
		acc, err = h.svc.Deposit(r.Context(), userID, req.Amount, "funds deposit")
	} else {
		acc, err = h.svc.Withdraw(r.Context(), userID, req.Amount, "funds withdrawal")
	}
	if err != nil {
		if errors.Is(err, ErrInsufficientMargin) {
			httputil.WriteError(w, http.StatusUnprocessableEntity, httputil.CodeInsufficientMargin, "insufficient margin")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.GetAccount(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "trading account not found")
		return
	}
	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, "before must be RFC3339")
			return
		}
		before = &t
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.ListTransactions(r.Context(), acc.ID, before, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
		return
	}
	if list == nil {
		list = []model.Transaction{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
