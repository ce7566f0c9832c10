package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/currency"
	"github.com/xenking/commerce-engine/internal/domain/order"
	"github.com/xenking/commerce-engine/internal/domain/pricing"
	"github.com/xenking/commerce-engine/internal/domain/settings"
	"github.com/xenking/commerce-engine/internal/exchange"
	"github.com/xenking/commerce-engine/internal/handler"
	"github.com/xenking/commerce-engine/internal/notify"
	"github.com/xenking/commerce-engine/internal/storage/postgres"
	"github.com/xenking/commerce-engine/internal/vault"
	"github.com/xenking/commerce-engine/pkg/health"
	"github.com/xenking/commerce-engine/pkg/httpmiddleware"
)

const serviceName = "commerce-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.AddReadiness(health.Check{Name: "postgres", Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.AddLiveness(health.Check{Name: "goroutines", Func: health.GoroutineCountCheck(10000)})
	healthSvc.AddLiveness(health.Check{Name: "gc_pause", Func: health.GCMaxPauseCheck(time.Second)})
	healthSvc.Start(ctx, 10*time.Second)

	h, err := newHandler(ctx, pool, cfg, healthSvc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds the services over pool and returns the full HTTP stack.
// The rate limiter janitor runs until ctx is done.
func newHandler(
	ctx context.Context,
	pool *pgxpool.Pool,
	cfg *Config,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	v, err := vault.New(cfg.VaultSecret)
	if err != nil {
		return nil, errors.Wrap(err, "create vault")
	}
	settingsSvc := settings.NewService(settingsRepo, v)

	fx := exchange.New(exchange.Config{
		BaseURL:        cfg.FX.BaseURL,
		Pair:           cfg.FX.Pair,
		Timeout:        cfg.FX.Timeout,
		TracerProvider: tp,
	})
	rates, err := currency.NewCache(settingsRepo, fx, currency.CacheConfig{
		Freshness:     cfg.FX.Freshness,
		DefaultRate:   cfg.FX.defaultRate,
		MeterProvider: mp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create rate cache")
	}
	calculator := pricing.NewCalculator(settingsRepo, rates)
	couponSvc := coupon.NewService(couponRepo)

	var notifier order.Notifier = notify.Logger{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.Fanout{
			notify.Logger{},
			notify.NewWebhook(notify.WebhookConfig{
				URL:            cfg.Notify.WebhookURL,
				Timeout:        cfg.Notify.Timeout,
				TracerProvider: tp,
			}, settingsSvc),
		}
	}
	orderSvc := order.NewService(order.Deps{
		Products:  productRepo,
		Addresses: addressRepo,
		Coupons:   couponSvc,
		Orders:    orderRepo,
		UoW:       postgres.NewUnitOfWork(pool),
		Notifier:  notifier,
		Shipping: order.ShippingPolicy{
			FreeThreshold: cfg.Shipping.freeThreshold,
			FlatFee:       cfg.Shipping.flatFee,
		},
	})

	// HTTP.
	instrument, err := httpmiddleware.Instrument(serviceName, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create http metrics")
	}
	h := handler.New(handler.Deps{
		Products: productRepo,
		Rates:    rates,
		Pricing:  calculator,
		Coupons:  couponSvc,
		Orders:   orderSvc,
		Settings: settingsSvc,
		APIKeys:  apikeyRepo,
		Pepper:   []byte(cfg.APIKeyPepper),
	})
	router := h.Routes(instrument, httpmiddleware.LogRequests())
	router.Get("/livez", healthSvc.Live)
	router.Get("/readyz", healthSvc.Ready)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.Max,
		Window:  cfg.RateLimit.Window,
		KeyFunc: httpmiddleware.HeaderOrIP(handler.APIKeyHeader),
	})
	go limiter.Run(ctx)

	return httpmiddleware.Wrap(router,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, handler.UserIDHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		limiter.Middleware(),
		func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, serviceName,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			)
		},
	), nil
}
