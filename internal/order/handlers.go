package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler serves customer and admin order endpoints.
type Handler struct {
	Svc *Service
	Log zerolog.Logger
}

// Mine handles GET /api/v1/orders.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orders, err := h.Svc.Mine(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, orders)
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	o, err := h.Svc.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

// AdminList handles GET /api/v1/admin/orders.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	f := ParseFilter(r)
	orders, total, err := h.Svc.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.Pagination{Page: f.Page, PerPage: f.Limit, TotalItems: int(total)},
	})
}

// AdminGet handles GET /api/v1/admin/orders/{id}.
func (h *Handler) AdminGet(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

type statusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateStatus handles PATCH /api/v1/admin/orders/{id}/status.
func (h *Handler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), Status(body.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "order status transition not allowed", nil)
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		h.Log.Error().Err(err).Msg("order request failed")
		common.WriteError(w, err)
	}
}
