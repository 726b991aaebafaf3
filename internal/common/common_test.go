package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/orders?page=3&limit=500", nil)
	page, perPage := ParsePagination(req, 20, 100)
	require.Equal(t, 3, page)
	require.Equal(t, 100, perPage)
	require.Equal(t, 200, Offset(page, perPage))

	req = httptest.NewRequest(http.MethodGet, "/admin/orders?page=-2&limit=abc", nil)
	page, perPage = ParsePagination(req, 20, 100)
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/analytics?days=%2030%20&bad=x", nil)
	require.Equal(t, 30, QueryInt(req, "days", 0))
	require.Equal(t, 7, QueryInt(req, "bad", 7))
	require.Equal(t, 7, QueryInt(req, "missing", 7))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	require.Equal(t, "203.0.113.9", ClientIP(req))
	req.RemoteAddr = "203.0.113.9"
	require.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestEnvelopes(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusUnprocessableEntity, "COUPON_EXPIRED", "coupon has expired", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.JSONEq(t, `{"error":{"code":"COUPON_EXPIRED","message":"coupon has expired"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	Data(rr, http.StatusOK, map[string]int{"items": 2})
	var body map[string]map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 2, body["data"]["items"])
}

func TestValidatorAddressRules(t *testing.T) {
	type addr struct {
		Phone   string `json:"phone" validate:"phone10"`
		Pincode string `json:"pincode" validate:"pincode"`
	}
	v := NewValidator()
	require.NoError(t, v.Struct(addr{Phone: "98765 43210", Pincode: "560001"}))
	require.Error(t, v.Struct(addr{Phone: "+91 98765 43210", Pincode: "560001"}))
	require.Error(t, v.Struct(addr{Phone: "9876543210", Pincode: "56001"}))
	require.Equal(t, "9876543210", Digits("(987) 654-3210"))
}
