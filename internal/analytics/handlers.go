package analytics

import (
	"net/http"
	"strconv"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// Overview handles GET /api/v1/admin/analytics/overview?days=30.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	days := common.QueryInt(r, "days", 0)
	if days < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "days must be positive", map[string]any{"field": "days"})
		return
	}
	ov, err := h.Svc.Overview(r.Context(), days)
	if err != nil {
		h.Svc.Log.Error().Err(err).Msg("analytics overview failed")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "could not compute analytics", nil)
		return
	}
	common.Data(w, http.StatusOK, ov)
}

// Customers handles GET /api/v1/admin/customers?sort=totalSpent&q=&page=&limit=.
func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	by, ok := ParseCustomerSort(r.URL.Query().Get("sort"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown sort", map[string]any{"field": "sort"})
		return
	}
	all, err := h.Svc.Customers(r.Context(), by, r.URL.Query().Get("q"))
	if err != nil {
		h.Svc.Log.Error().Err(err).Msg("customer listing failed")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "could not list customers", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50, 200)
	start := min(common.Offset(page, perPage), len(all))
	end := min(start+perPage, len(all))
	w.Header().Set("X-Total-Count", strconv.Itoa(len(all)))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       all[start:end],
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(all)},
	})
}
