package offer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Handler exposes the public offers page and admin offer management.
type Handler struct {
	Svc *Service
}

type offerView struct {
	Offer
	Status   coupon.Status  `json:"status"`
	DaysLeft int            `json:"daysLeft"`
	Savings  *pricing.Money `json:"savings,omitempty"`
}

func view(o Offer, now time.Time) offerView {
	return offerView{Offer: o, Status: StatusAt(o, now), DaysLeft: DaysLeft(o, now)}
}

// Active handles GET /api/v1/offers/active?product=&category=&subtotal=.
// With a subtotal each offer carries the amount it would save.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var subtotal *pricing.Money
	if raw := strings.TrimSpace(q.Get("subtotal")); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "subtotal must be a non-negative amount", map[string]any{"field": "subtotal"})
			return
		}
		subtotal = &v
	}
	items, err := h.Svc.ListActive(r.Context(), ActiveFilter{
		ProductID: strings.TrimSpace(q.Get("product")),
		Category:  strings.TrimSpace(q.Get("category")),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	now := h.Svc.now()
	views := make([]offerView, 0, len(items))
	for _, o := range items {
		v := view(o, now)
		if subtotal != nil {
			saved := Savings(o, *subtotal)
			v.Savings = &saved
		}
		views = append(views, v)
	}
	common.Data(w, http.StatusOK, views)
}

// List handles GET /api/v1/admin/offers.
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
	views := make([]offerView, 0, len(items))
	for _, o := range items {
		views = append(views, view(o, now))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       views,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/admin/offers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view(o, h.Svc.now()))
}

// Create handles POST /api/v1/admin/offers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	o, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view(o, h.Svc.now()))
}

// Update handles PUT /api/v1/admin/offers/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	o, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view(o, h.Svc.now()))
}

// SetActive handles PATCH /api/v1/admin/offers/{id}/active.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsActive == nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "isActive is required", nil)
		return
	}
	o, err := h.Svc.SetActive(r.Context(), chi.URLParam(r, "id"), *body.IsActive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view(o, h.Svc.now()))
}

// Delete handles DELETE /api/v1/admin/offers/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var inputErr *InputError
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "offer not found", nil)
	case errors.As(err, &inputErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", inputErr.Message, map[string]any{"field": inputErr.Field})
	default:
		h.Svc.Log.Error().Err(err).Msg("offer request failed")
		common.WriteError(w, err)
	}
}
