package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/resilience"
)

// Handler exposes session, cart, coupon and order placement endpoints.
type Handler struct {
	Svc *Service
	Log zerolog.Logger
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type couponRequest struct {
	Code string `json:"code"`
}

type placeOrderRequest struct {
	ShippingAddress order.Address         `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	Payment         *payment.Confirmation `json:"payment,omitempty"`
}

// Create handles POST /api/v1/sessions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// Get handles GET /api/v1/sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// AddItem handles POST /api/v1/sessions/{id}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var body addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if body.ProductID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", map[string]any{"field": "productId"})
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	view, inserted, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), body.ProductID, body.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view, "cartOpened": inserted})
}

// UpdateItem handles PATCH /api/v1/sessions/{id}/items/{productId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var body quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	view, err := h.Svc.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"), body.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /api/v1/sessions/{id}/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// ClearItems handles DELETE /api/v1/sessions/{id}/items.
func (h *Handler) ClearItems(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.ClearCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// ApplyCoupon handles POST /api/v1/sessions/{id}/coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var body couponRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if coupon.NormalizeCode(body.Code) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", map[string]any{"field": "code"})
		return
	}
	view, discount, err := h.Svc.ApplyCoupon(r.Context(), chi.URLParam(r, "id"), body.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view, "discount": discount})
}

// RemoveCoupon handles DELETE /api/v1/sessions/{id}/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.RemoveCoupon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// PaymentIntent handles POST /api/v1/sessions/{id}/payment-intent.
func (h *Handler) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	intent, err := h.Svc.CreatePaymentIntent(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, intent)
}

// PlaceOrder handles POST /api/v1/sessions/{id}/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var body placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	result, err := h.Svc.PlaceOrder(r.Context(), PlaceOrderInput{
		SessionID:     chi.URLParam(r, "id"),
		UserID:        userID,
		Address:       body.ShippingAddress,
		PaymentMethod: order.PaymentMethod(body.PaymentMethod),
		Payment:       body.Payment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, result)
}

var couponCodes = []struct {
	err  error
	code string
}{
	{coupon.ErrNotFound, "COUPON_NOT_FOUND"},
	{coupon.ErrInactive, "COUPON_INACTIVE"},
	{coupon.ErrNotYetValid, "COUPON_NOT_YET_VALID"},
	{coupon.ErrExpired, "COUPON_EXPIRED"},
	{coupon.ErrUsageLimitReached, "COUPON_USAGE_LIMIT_REACHED"},
	{coupon.ErrMinimumNotMet, "MINIMUM_NOT_MET"},
	{coupon.ErrNotApplicable, "COUPON_NOT_APPLICABLE"},
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		stockErr *cart.StockError
		minErr   *coupon.MinimumError
		dropErr  *CouponDroppedError
	)
	switch {
	case errors.As(err, &dropErr):
		common.JSONError(w, http.StatusConflict, "COUPON_DROPPED", "your coupon no longer applies, please review the new total",
			map[string]any{"code": dropErr.Code, "reason": dropErr.Err.Error()})
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "checkout session not found", nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.As(err, &stockErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "STOCK_EXCEEDED", "only "+strconv.Itoa(stockErr.Available)+" in stock",
			map[string]any{"productId": stockErr.ProductID, "requested": stockErr.Requested, "available": stockErr.Available})
	case errors.Is(err, cart.ErrStockExceeded):
		common.JSONError(w, http.StatusUnprocessableEntity, "STOCK_EXCEEDED", "requested quantity exceeds stock", nil)
	case errors.Is(err, cart.ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", "quantity must be positive", nil)
	case errors.Is(err, cart.ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "LINE_NOT_FOUND", "product is not in the cart", nil)
	case errors.As(err, &minErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "MINIMUM_NOT_MET", minErr.Error(), map[string]any{"required": minErr.Required})
	case coupon.IsRejection(err):
		for _, c := range couponCodes {
			if errors.Is(err, c.err) {
				common.JSONError(w, http.StatusUnprocessableEntity, c.code, c.err.Error(), nil)
				return
			}
		}
	case errors.Is(err, coupon.ErrLookupFailed):
		h.Log.Error().Err(err).Msg("coupon lookup failed")
		common.JSONError(w, http.StatusBadGateway, "COUPON_LOOKUP_FAILED", "could not check the coupon, please try again", nil)
	case errors.Is(err, ErrStaleLookup):
		common.JSONError(w, http.StatusConflict, "STALE_REQUEST", "your cart changed while the coupon was being checked", nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "SESSION_BUSY", "checkout session is being updated, please retry", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, ErrPaymentRequired):
		common.JSONError(w, http.StatusBadRequest, "PAYMENT_REQUIRED", "payment confirmation is required", nil)
	case errors.Is(err, ErrUnsupportedPayment):
		common.JSONError(w, http.StatusBadRequest, "UNSUPPORTED_PAYMENT_METHOD", "payment method must be cod or razorpay", nil)
	case errors.Is(err, payment.ErrCancelled):
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_CANCELLED", "payment was cancelled", nil)
	case errors.Is(err, payment.ErrSignatureMismatch), errors.Is(err, payment.ErrAmountMismatch):
		h.Log.Warn().Err(err).Msg("payment verification failed")
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_VERIFICATION_FAILED", "payment could not be verified", nil)
	case errors.Is(err, payment.ErrNotConfigured), errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "online payment is unavailable", nil)
	case errors.Is(err, payment.ErrInvalidAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", "nothing to pay", nil)
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", nil)
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		h.Log.Error().Err(err).Msg("checkout request failed")
		common.WriteError(w, err)
	}
}
