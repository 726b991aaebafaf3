package coupon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes the public offers listing and admin coupon management.
type Handler struct {
	Svc *Service
}

type couponView struct {
	Coupon
	Status Status `json:"status"`
}

func (h *Handler) view(c Coupon, now time.Time) couponView {
	return couponView{Coupon: c, Status: StatusAt(c, now)}
}

// Active handles GET /api/v1/coupons/active.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.ListActive(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}

// List handles GET /api/v1/admin/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50, 200)
	items, total, err := h.Svc.List(r.Context(), ListFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	now := h.Svc.now()
	views := make([]couponView, 0, len(items))
	for _, c := range items {
		views = append(views, h.view(c, now))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       views,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/admin/coupons/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(c, h.Svc.now()))
}

// Create handles POST /api/v1/admin/coupons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, h.view(c, h.Svc.now()))
}

// Update handles PUT /api/v1/admin/coupons/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(c, h.Svc.now()))
}

// SetActive handles PATCH /api/v1/admin/coupons/{id}/active.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsActive == nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "isActive is required", nil)
		return
	}
	c, err := h.Svc.SetActive(r.Context(), chi.URLParam(r, "id"), *body.IsActive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(c, h.Svc.now()))
}

// Delete handles DELETE /api/v1/admin/coupons/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateCode handles POST /api/v1/admin/coupons/generate-code.
func (h *Handler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	code, err := GenerateCode()
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]string{"code": code})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var inputErr *InputError
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "coupon not found", nil)
	case errors.Is(err, ErrDuplicateCode):
		common.JSONError(w, http.StatusConflict, "DUPLICATE_CODE", err.Error(), nil)
	case errors.As(err, &inputErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", inputErr.Message, map[string]any{"field": inputErr.Field})
	default:
		h.Svc.Log.Error().Err(err).Msg("coupon request failed")
		common.WriteError(w, err)
	}
}
