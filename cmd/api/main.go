package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pasar/internal/auth"
	"github.com/noah-isme/backend-pasar/internal/cart"
	"github.com/noah-isme/backend-pasar/internal/catalog"
	"github.com/noah-isme/backend-pasar/internal/checkout"
	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/config"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/health"
	"github.com/noah-isme/backend-pasar/internal/lock"
	"github.com/noah-isme/backend-pasar/internal/obs"
	"github.com/noah-isme/backend-pasar/internal/order"
	"github.com/noah-isme/backend-pasar/internal/payment"
	"github.com/noah-isme/backend-pasar/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pasar")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pasar-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "pasar-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	validate := validator.New()

	bus := &events.Bus{
		Store:     events.PGStore{Pool: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	catalogSvc := catalog.Service{
		Store: catalog.PGStore{Pool: pool},
		Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
	}
	catalogHandler := catalog.Handlers{Service: catalogSvc}

	authService, err := auth.NewService(auth.Config{
		Store:          auth.PGStore{Pool: pool},
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	cartStore := cart.PGStore{Pool: pool}
	cartHandler := cart.Handlers{Store: cartStore, Validate: validate, TaxBps: cfg.PricingTaxRateBPS}

	providers := map[string]payment.Provider{
		"payu": payment.PayU{
			MerchantKey: cfg.PayUMerchantKey,
			Salt:        cfg.PayUSalt,
			BaseURL:     cfg.PayUBaseURL,
			Sandbox:     cfg.PayUSandbox,
		},
	}
	callbackURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/api/v1/payments/payu/callback"
	paymentSvc := payment.Service{
		Providers:   providers,
		DefaultName: "payu",
		SuccessURL:  callbackURL,
		FailureURL:  callbackURL,
	}

	orderStore := order.PGStore{Pool: pool, TaxBps: cfg.PricingTaxRateBPS, Currency: cfg.CurrencyCode}
	materializer := &order.Materializer{
		Store:   orderStore,
		Locker:  lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.LockTTL,
		Events:  bus,
		Logger:  logger,
	}
	orderHandler := order.Handlers{Store: orderStore}

	sessionStore := payment.PGSessionStore{Pool: pool}
	webhookHandler := payment.Webhook{
		Store:              sessionStore,
		Providers:          providers,
		Orders:             materializer.WithTrigger("webhook"),
		Retry:              order.TaskEnqueuer{Client: taskClient, Logger: logger},
		Replay:             redisClient,
		ReplayTTL:          cfg.WebhookReplayTTL,
		MaterializeTimeout: cfg.MaterializeTimeout,
		Events:             bus,
		Logger:             logger,
	}
	callbackHandler := payment.Callback{
		ErrorURL:     cfg.CheckoutErrorURL,
		ReconcileURL: strings.TrimRight(cfg.PublicBaseURL, "/") + "/api/v1/payments/reconcile",
		Logger:       logger,
	}
	waiter := &payment.Waiter{
		Store:        sessionStore,
		Orders:       materializer.WithTrigger("waiter"),
		Events:       bus,
		PollInterval: cfg.ReconcilePollInterval,
		Ceiling:      cfg.ReconcileCeiling,
		Logger:       logger,
	}
	reconcileHandler := payment.ReconcileHandler{
		Waiter:     waiter,
		Store:      sessionStore,
		SuccessURL: cfg.CheckoutSuccessURL,
		ErrorURL:   cfg.CheckoutErrorURL,
		PendingURL: cfg.CheckoutPendingURL,
	}

	checkoutHandler := checkout.Handlers{
		Service: checkout.Service{
			Carts:    cartStore,
			Payments: paymentSvc,
			TaxBps:   cfg.PricingTaxRateBPS,
		},
		Validate: validate,
	}

	gatewayLimiter, err := newGatewayLimiter(redisClient, cfg.GatewayRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.PoolChecker{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.List)
		v.Get("/products/{slug}", catalogHandler.Get)

		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Route("/carts", func(c chi.Router) {
			c.Use(authMiddleware.Authenticate)
			c.Get("/{cartId}", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Put("/{cartId}/items", cartHandler.SetItem)
				g.Delete("/{cartId}/items/{productId}", cartHandler.RemoveItem)
			})
		})

		v.With(idem.Middleware).Post("/checkout", checkoutHandler.Start)

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)
			authR.Get("/orders", orderHandler.List)
			authR.Get("/orders/{orderId}", orderHandler.Get)
		})

		v.Route("/payments", func(p chi.Router) {
			p.Use(gatewayLimiter.Handler)
			p.Get("/{provider}/callback", callbackHandler.Handle)
			p.Get("/reconcile/{cartId}", reconcileHandler.Wait)
			p.Get("/reconcile/{cartId}/status", reconcileHandler.Status)
		})

		v.With(gatewayLimiter.Handler).Post("/webhooks/payment/{provider}", webhookHandler.Handle)
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "pasar-api")
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: handler,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func newGatewayLimiter(rdb *redis.Client, format string) (*limiterstdlib.Middleware, error) {
	rate, err := limiter.NewRateFromFormatted(format)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "limiter:gateway"})
	if err != nil {
		return nil, err
	}
	return limiterstdlib.NewMiddleware(limiter.New(store, rate)), nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(envOrDefault(key, "")) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envFloat(key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(envOrDefault(key, ""), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(envOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, profile := range []string{"allocs", "goroutine", "heap", "mutex"} {
		mux.Handle("/"+profile, pprof.Handler(profile))
	}
	return mux
}

// protectPprof requires basic auth on the profiling endpoints. With no user
// configured the handler is exposed as-is, which is only acceptable on a
// non-public listener.
func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !basicAuthMatches(r, user, pass) {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func basicAuthMatches(r *http.Request, user, pass string) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(p), []byte(pass)) == 1
	return userOK && passOK
}
