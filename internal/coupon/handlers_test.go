package coupon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActiveHandler(t *testing.T) {
	expired := baseCoupon()
	expired.Code = "OLD"
	expired.ValidUntil = now.Add(-1)
	h := &Handler{Svc: newTestService(newMemRepo(baseCoupon(), expired))}

	rec := httptest.NewRecorder()
	h.Active(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coupons/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []Coupon `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "SAVE10", body.Data[0].Code)
}

func TestCreateHandler(t *testing.T) {
	h := &Handler{Svc: newTestService(newMemRepo(baseCoupon()))}

	payload := `{"code":"save10","title":"Dup","discountType":"fixed","discountValue":"50","validFrom":"2024-06-01T00:00:00Z","validUntil":"2024-07-01T00:00:00Z"}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(payload)))
	require.Equal(t, http.StatusConflict, rec.Code)

	payload = strings.Replace(payload, "save10", "monsoon", 1)
	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"MONSOON"`)
	require.Contains(t, rec.Body.String(), `"status":"active"`)

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(`{"title":""}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerateCodeHandler(t *testing.T) {
	h := &Handler{Svc: newTestService(newMemRepo())}
	rec := httptest.NewRecorder()
	h.GenerateCode(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Regexp(t, `"code":"[A-Z0-9]{8}"`, rec.Body.String())
}
