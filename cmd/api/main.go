package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/analytics"
	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/offer"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/resilience"
	"github.com/noah-isme/storefront/internal/security"
	"github.com/noah-isme/storefront/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingCfg := obs.TracingConfig{
		ServiceName:   "storefront-api",
		Endpoint:      cfg.TracingEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingRatio,
		Environment:   cfg.AppEnv,
	}
	tracingEnabled := tracingCfg.Enabled()
	shutdownTracer, err := obs.InitTracer(ctx, tracingCfg)
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		tracingEnabled = false
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, tracingEnabled)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	bus := &events.Bus{
		Store:     events.PgStore{Pool: deps.DB},
		Notifiers: []events.Notifier{&tasks.Notifier{Client: deps.TaskClient, Log: logger}},
		Log:       logger,
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Repo:   catalog.NewStore(deps.DB),
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService, Logger: logger})

	couponService := &coupon.Service{Repo: coupon.NewStore(deps.DB), Validate: deps.Validator, Log: logger}
	couponHandler := &coupon.Handler{Svc: couponService}

	offerHandler := &offer.Handler{Svc: &offer.Service{Repo: offer.NewStore(deps.DB), Validate: deps.Validator, Log: logger}}

	orderService := order.NewService(order.NewStore(deps.DB), bus, logger)
	orderHandler := &order.Handler{Svc: orderService, Log: logger}

	checkoutService := &checkout.Service{
		Sessions: &checkout.SessionStore{
			R:       deps.Redis,
			Locker:  lock.Locker{R: deps.Redis, Prefix: "lock:", RetryBackoff: 50 * time.Millisecond, MaxWait: 2 * time.Second},
			TTL:     cfg.SessionTTL,
			LockTTL: max(cfg.SessionLockTTL, 3*cfg.ExternalTimeout),
		},
		Catalog:  catalogService,
		Coupons:  couponService,
		Orders:   orderService,
		Stock:    catalogService,
		Events:   bus,
		Rule:     pricing.ShippingRule{Threshold: cfg.FreeShippingThreshold, Fee: cfg.ShippingFee},
		Validate: deps.Validator,
		Log:      logger,
	}
	if cfg.RazorpayEnabled() {
		breaker := resilience.NewBreaker(resilience.BreakerConfig{
			Target:    "razorpay",
			Threshold: cfg.BreakerFailureThreshold,
			OpenFor:   cfg.BreakerOpenTimeout,
			Logger:    logger,
		})
		razorpay, err := payment.NewRazorpay(payment.RazorpayConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
			Currency:  cfg.Currency,
			Timeout:   cfg.ExternalTimeout,
			Breaker:   breaker,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise razorpay")
		}
		checkoutService.Payments = razorpay
	} else {
		logger.Warn().Msg("razorpay not configured; online payments disabled")
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutService, Log: logger}

	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Orders: orderService,
		R:      deps.Redis,
		TTL:    cfg.AnalyticsCacheTTL,
		Log:    logger,
	}}

	authMiddleware := auth.Middleware{Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	couponLimit := ratelimit.Handler{
		Limiter: ratelimit.StoreLimiter{Store: deps.LimiterStore},
		Key:     ratelimit.RouteParamKey("coupon", "id"),
		Window:  cfg.CouponRateWindow,
		Max:     cfg.CouponRateLimit,
		Log:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.MetricsEnabled {
		r.Use(obs.NewHTTPMetrics(cfg.MetricsNamespace, nil).Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: 31536000}.Middleware)
	r.Use(cors.Handler(corsOptions(cfg)))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{Checker: health.Probe{DB: deps.DB, Redis: deps.Redis}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: 64 << 10}.Middleware)
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Get("/coupons/active", couponHandler.Active)
		v.Get("/offers/active", offerHandler.Active)

		v.Route("/sessions", func(s chi.Router) {
			s.Post("/", checkoutHandler.Create)
			s.Route("/{id}", func(one chi.Router) {
				one.Get("/", checkoutHandler.Get)
				one.Post("/items", checkoutHandler.AddItem)
				one.Delete("/items", checkoutHandler.ClearItems)
				one.Patch("/items/{productId}", checkoutHandler.UpdateItem)
				one.Delete("/items/{productId}", checkoutHandler.RemoveItem)
				one.With(couponLimit.Middleware).Post("/coupon", checkoutHandler.ApplyCoupon)
				one.Delete("/coupon", checkoutHandler.RemoveCoupon)
				one.Group(func(authed chi.Router) {
					authed.Use(authMiddleware.RequireAuth)
					authed.Post("/payment-intent", checkoutHandler.PaymentIntent)
					authed.With(idem.Middleware).Post("/orders", checkoutHandler.PlaceOrder)
				})
			})
		})

		v.Group(func(authed chi.Router) {
			authed.Use(authMiddleware.RequireAuth)
			authed.Get("/orders", orderHandler.Mine)
			authed.Get("/orders/{id}", orderHandler.Get)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAdmin)

			admin.Post("/products", catalogHandler.Create)
			admin.Put("/products/{id}", catalogHandler.Update)
			admin.Delete("/products/{id}", catalogHandler.Delete)

			admin.Get("/coupons", couponHandler.List)
			admin.Post("/coupons", couponHandler.Create)
			admin.Post("/coupons/generate-code", couponHandler.GenerateCode)
			admin.Get("/coupons/{id}", couponHandler.Get)
			admin.Put("/coupons/{id}", couponHandler.Update)
			admin.Patch("/coupons/{id}/active", couponHandler.SetActive)
			admin.Delete("/coupons/{id}", couponHandler.Delete)

			admin.Get("/offers", offerHandler.List)
			admin.Post("/offers", offerHandler.Create)
			admin.Get("/offers/{id}", offerHandler.Get)
			admin.Put("/offers/{id}", offerHandler.Update)
			admin.Patch("/offers/{id}/active", offerHandler.SetActive)
			admin.Delete("/offers/{id}", offerHandler.Delete)

			admin.Get("/orders", orderHandler.AdminList)
			admin.Get("/orders/{id}", orderHandler.AdminGet)
			admin.Patch("/orders/{id}/status", orderHandler.AdminUpdateStatus)

			admin.Get("/analytics/overview", analyticsHandler.Overview)
			admin.Get("/customers", analyticsHandler.Customers)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	drain(srv, logger)
}

func drain(srv *http.Server, logger zerolog.Logger) {
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// corsOptions only allows credentials for an explicit origin list. The
// wildcard default is for local development.
func corsOptions(cfg *config.Config) cors.Options {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-Total-Count", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return opts
	}
	origins := make([]string, 0, len(cfg.CORSAllowedOrigins))
	for _, o := range cfg.CORSAllowedOrigins {
		origins = append(origins, strings.TrimRight(o, "/"))
	}
	opts.AllowedOrigins = origins
	opts.AllowCredentials = true
	return opts
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	return mux
}
