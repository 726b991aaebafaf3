package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
)

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestMineRequiresUser(t *testing.T) {
	h := &Handler{Svc: NewService(newMemRepo(), nil, zerolog.Nop()), Log: zerolog.Nop()}
	rec := httptest.NewRecorder()
	h.Mine(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOwnOrder(t *testing.T) {
	o := sampleOrder("user-1", StatusPending)
	h := &Handler{Svc: NewService(newMemRepo(o), nil, zerolog.Nop()), Log: zerolog.Nop()}

	req := withID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+o.ID, nil), o.ID)
	rec := httptest.NewRecorder()
	h.Get(rec, req.WithContext(common.WithUserID(req.Context(), "user-1")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), o.ID)

	rec = httptest.NewRecorder()
	h.Get(rec, req.WithContext(common.WithUserID(req.Context(), "user-2")))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUpdateStatus(t *testing.T) {
	o := sampleOrder("user-1", StatusDelivered)
	h := &Handler{Svc: NewService(newMemRepo(o), nil, zerolog.Nop()), Log: zerolog.Nop()}

	req := withID(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"cancelled"}`)), o.ID)
	rec := httptest.NewRecorder()
	h.AdminUpdateStatus(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATE")

	req = withID(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"bogus"}`)), o.ID)
	rec = httptest.NewRecorder()
	h.AdminUpdateStatus(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListFilters(t *testing.T) {
	h := &Handler{Svc: NewService(newMemRepo(sampleOrder("u", StatusPending), sampleOrder("u", StatusShipped)), nil, zerolog.Nop()), Log: zerolog.Nop()}
	rec := httptest.NewRecorder()
	h.AdminList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=shipped", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))
}
