package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler throttles a route to Max requests per Window for each key. When
// the limiter itself fails the request is let through and the error logged.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	Window  time.Duration
	Max     int
	Log     zerolog.Logger
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		if h.Limiter != nil && h.Key != nil {
			key = h.Key(r)
		}
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), key, h.Window, h.Max)
		if err != nil {
			h.Log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		setHeaders(w.Header(), d)
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
		h.Log.Debug().Str("key", key).Time("reset", d.Reset).Msg("rate limited")
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later", nil)
	})
}

func setHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}

// RouteParamKey keys requests by scope, the named route parameter and the
// client IP, so one shopper cannot exhaust another session's budget.
func RouteParamKey(scope, param string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + chi.URLParam(r, param) + ":" + common.ClientIP(r)
	}
}
