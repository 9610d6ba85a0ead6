package admin

import (
	"errors"
	"net/http"

	"paperbroker/internal/auth"
	"paperbroker/internal/funds"
	"paperbroker/internal/httputil"
	"paperbroker/internal/positions"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) PatchPosition(w http.ResponseWriter, r *http.Request) {
	var patch PositionPatch
	if err := httputil.ReadJSON(r, &patch); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	res, err := h.svc.PatchPosition(r.Context(), auth.AdminID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		if errors.Is(err, positions.ErrPositionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "position not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) AdjustFunds(w http.ResponseWriter, r *http.Request) {
	var adj FundAdjustment
	if err := httputil.ReadJSON(r, &adj); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	acc, err := h.svc.AdjustFunds(r.Context(), auth.AdminID(r.Context()), adj)
	if err != nil {
		if errors.Is(err, funds.ErrAccountNotFound) {
			httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "trading account not found")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}
