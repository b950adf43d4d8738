package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	billinghttp "github.com/dmitrymomot/subsync/modules/billing"
	"github.com/dmitrymomot/subsync/pkg/archive"
	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/billing/pgstore"
	"github.com/dmitrymomot/subsync/pkg/clientip"
	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/mailer"
	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/redis"
	"github.com/dmitrymomot/subsync/pkg/requestid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	)
	slog.SetDefault(log)

	var (
		pgCfg    pg.Config
		redisCfg redis.Config
		httpCfg  httpserver.Config
		checkout billing.CheckoutConfig
		mailCfg  mailer.Config
		archCfg  archive.Config
	)
	if err := errors.Join(
		config.Load(&pgCfg),
		config.Load(&redisCfg),
		config.Load(&httpCfg),
		config.Load(&checkout),
		config.Load(&mailCfg),
		config.Load(&archCfg),
	); err != nil {
		return err
	}

	catalog, err := billing.LoadCatalogFile(ctx, app.CatalogPath)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "plan catalog loaded", slog.Int("plans", catalog.Len()))

	provider, err := newProvider(app.Provider, log.With(logger.Provider(app.Provider)))
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
		return err
	}
	store := pgstore.New(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := billing.NewMetrics(registry)

	var redisClient goredis.UniversalClient
	checks := []httpserver.Check{pg.Healthcheck(pool)}
	reconcilerOpts := []billing.ReconcilerOption{
		billing.WithLogger(log.With(logger.Component("reconciler"))),
		billing.WithMetrics(metrics),
	}

	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		redisClient = client
		checks = append(checks, redis.Healthcheck(client))
		reconcilerOpts = append(reconcilerOpts, billing.WithDeduper(billing.NewRedisDeduper(client, app.DedupeTTL)))
	}

	if mailCfg.Enabled() {
		m, err := mailer.NewPostmark(mailCfg)
		if err != nil {
			return err
		}
		reconcilerOpts = append(reconcilerOpts, billing.WithNotifier(m))
	}

	if archCfg.Enabled() {
		a, err := archive.NewS3(ctx, archCfg)
		if err != nil {
			return err
		}
		reconcilerOpts = append(reconcilerOpts, billing.WithArchiver(a))
	}

	initiator := billing.NewInitiator(provider, checkout,
		billing.WithInitiatorLogger(log.With(logger.Component("checkout"))),
		billing.WithInitiatorMetrics(metrics),
	)
	reconciler := billing.NewReconciler(provider, catalog, store, store, reconcilerOpts...)

	limiter, releaseLimiter, err := checkoutLimiter(app.CheckoutRateLimit, redisClient, log)
	if err != nil {
		return err
	}
	defer releaseLimiter()

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(app.ClientIP.TrustedHeaders...))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, checks...))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Mount("/api", billinghttp.Router(billinghttp.RouterOptions{
		Checkout:            initiator,
		Webhook:             reconciler,
		Logger:              log,
		CheckoutMiddlewares: limiter,
	}))

	log.InfoContext(ctx, "starting billing service",
		logger.Provider(provider.Name()),
		slog.Bool("dedupe", redisCfg.Enabled()),
		slog.Bool("notifications", mailCfg.Enabled()),
		slog.Bool("archive", archCfg.Enabled()),
	)
	return httpserver.New(httpCfg, httpserver.WithLogger(log)).Run(ctx, r)
}
