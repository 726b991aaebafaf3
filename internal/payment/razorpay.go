package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/resilience"
)

const providerRazorpay = "razorpay"

// RazorpayConfig configures the Razorpay Orders API client.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Currency  string
	Timeout   time.Duration
	Breaker   *resilience.Breaker
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// Razorpay implements Collector against the Razorpay Orders API.
type Razorpay struct {
	keyID    string
	secret   string
	baseURL  string
	currency string
	http     resilience.HTTPClient
	log      zerolog.Logger
}

// NewRazorpay constructs the client. Outbound calls are traced with otelhttp
// and guarded by the supplied circuit breaker.
func NewRazorpay(cfg RazorpayConfig) (*Razorpay, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.razorpay.com"
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "INR"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{Target: providerRazorpay, Logger: cfg.Logger})
	}
	return &Razorpay{
		keyID:    cfg.KeyID,
		secret:   cfg.KeySecret,
		baseURL:  base,
		currency: currency,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     breaker,
			MaxAttempts: 2,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		log: cfg.Logger,
	}, nil
}

type razorpayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent opens a Razorpay order for the amount.
func (r *Razorpay) CreateIntent(ctx context.Context, req IntentRequest) (intent Intent, err error) {
	ctx, span := otel.Tracer("payment.Razorpay").Start(ctx, "Razorpay.CreateIntent")
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		obs.IncPaymentIntent(providerRazorpay, result)
		span.End()
	}()

	amount := ToMinorUnits(req.Amount)
	if amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	span.SetAttributes(attribute.Int64("payment.amount_minor", amount), attribute.String("payment.receipt", req.Receipt))

	body := razorpayOrder{Amount: amount, Currency: r.currency, Receipt: req.Receipt, Notes: req.Notes}
	var created razorpayOrder
	if err := r.do(ctx, http.MethodPost, "/v1/orders", body, &created); err != nil {
		return Intent{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	return Intent{
		Provider:        providerRazorpay,
		KeyID:           r.keyID,
		ProviderOrderID: created.ID,
		Amount:          created.Amount,
		Currency:        created.Currency,
		Receipt:         created.Receipt,
	}, nil
}

// Confirm verifies the widget signature and that the provider order was
// opened for exactly amount.
func (r *Razorpay) Confirm(ctx context.Context, c Confirmation, amount pricing.Money) (Receipt, error) {
	ctx, span := otel.Tracer("payment.Razorpay").Start(ctx, "Razorpay.Confirm")
	defer span.End()

	if c.Cancelled {
		return Receipt{}, ErrCancelled
	}
	if c.ProviderOrderID == "" || c.PaymentID == "" || !r.VerifySignature(c.ProviderOrderID, c.PaymentID, c.Signature) {
		span.SetStatus(codes.Error, "signature mismatch")
		return Receipt{}, ErrSignatureMismatch
	}
	var remote razorpayOrder
	if err := r.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(c.ProviderOrderID), nil, &remote); err != nil {
		span.RecordError(err)
		return Receipt{}, fmt.Errorf("razorpay: fetch order: %w", err)
	}
	if want := ToMinorUnits(amount); remote.Amount != want {
		r.log.Warn().Str("provider_order_id", c.ProviderOrderID).Int64("expected", want).Int64("actual", remote.Amount).Msg("razorpay amount mismatch")
		return Receipt{}, fmt.Errorf("%w: expected %d got %d", ErrAmountMismatch, want, remote.Amount)
	}
	return Receipt{Provider: providerRazorpay, PaymentID: c.PaymentID, OrderID: c.ProviderOrderID}, nil
}

// VerifySignature checks the widget's HMAC-SHA256 over "order_id|payment_id".
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	expected := Sign(r.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Sign returns the hex signature Razorpay attaches to a successful payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Razorpay) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(r.keyID, r.secret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr razorpayError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Description != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error.Description)
		}
		return errors.New(resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
