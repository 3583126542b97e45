package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"petcare/internal/api/handlers"
	"petcare/internal/billing"
	"petcare/internal/cache"
	"petcare/internal/config"
	"petcare/internal/core"
	"petcare/internal/db"
	"petcare/internal/external"
	"petcare/internal/queue"
	"petcare/internal/telemetry"
)

const (
	metricsPrometheus = "prometheus"
	metricsCloudWatch = "cloudwatch"
)

// database is satisfied by *pgxpool.Pool.
type database interface {
	db.DBTX
	Ping(ctx context.Context) error
}

// recorder is the union of the reconciler and HTTP metric sinks.
type recorder interface {
	billing.Metrics
	core.MetricsCollector
}

// dependencies are the live connections buildServer wires together. Only DB
// is required.
type dependencies struct {
	DB         database
	Redis      redis.Cmdable
	SQS        queue.SQSSender
	CloudWatch telemetry.CloudWatchClient
	Sentry     *sentry.Hub

	// StripeHTTP overrides the HTTP client used for Stripe REST calls.
	StripeHTTP *http.Client
}

// buildServer assembles repositories, the reconciler and the webhook handler
// and mounts every route.
func buildServer(cfg *config.Config, logger *slog.Logger, deps dependencies) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics, metricsHandler := newRecorder(cfg.Observability, deps.CloudWatch, logger)
	srv.Metrics = metrics
	srv.MetricsHandler = metricsHandler
	srv.HealthProbes = append(srv.HealthProbes, db.NewHealthProbe(deps.DB))

	var packages billing.PackageStore = db.NewPackageRepo(deps.DB)
	if deps.Redis != nil {
		packages = cache.NewPackageCache(packages, deps.Redis, cfg.Cache.TTL, logger)
		srv.HealthProbes = append(srv.HealthProbes, cache.NewHealthProbe(deps.Redis))
	}

	subscriptions := db.NewUserSubscriptionRepo(deps.DB, logger)
	rd := billing.Deps{
		Subscribers:   db.NewSubscriberRepo(deps.DB, logger),
		Subscriptions: subscriptions,
		Payments:      db.NewPaymentLogRepo(deps.DB),
		Packages:      packages,
		Verification:  db.NewSpecialistRepo(deps.DB, logger),
		Provider:      newStripeClient(cfg.Billing, deps.StripeHTTP, logger),
		Metrics:       metrics,
		Alerter:       telemetry.NewSentryAlerter(deps.Sentry, logger),
		Policy:        billing.NewTierPolicy(cfg.Billing.PaidTiers, cfg.Billing.FreeTier),
		Logger:        logger,
	}
	if deps.SQS != nil && cfg.AWS.NotificationQueue != "" {
		rd.Notifier = queue.NewVerificationPublisher(deps.SQS, cfg.AWS, logger)
	}
	reconciler := billing.NewReconciler(rd)

	verifier := external.NewStripeVerifier(cfg.Billing.StripeWebhookSecret, cfg.Billing.WebhookTolerance)
	webhookHandler := handlers.NewStripeWebhookHandler(verifier, reconciler, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, webhookHandler.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// newRecorder picks the metrics backend. Only Prometheus exposes a scrape
// handler. CloudWatch without a client degrades to no metrics.
func newRecorder(cfg config.ObservabilityConfig, cw telemetry.CloudWatchClient, logger *slog.Logger) (recorder, http.Handler) {
	switch cfg.MetricsBackend {
	case metricsPrometheus:
		r := telemetry.NewPrometheusRecorder(prometheusNamespace(cfg.MetricNamespace))
		return r, r.Handler()
	case metricsCloudWatch:
		if cw == nil {
			logger.Warn("cloudwatch metrics selected without a client, metrics disabled")
			return telemetry.NopRecorder{}, nil
		}
		return telemetry.NewCloudWatchRecorder(cw, cfg.MetricNamespace, logger), nil
	default:
		return telemetry.NopRecorder{}, nil
	}
}

func newStripeClient(cfg config.BillingConfig, httpClient *http.Client, logger *slog.Logger) *external.StripeClient {
	sc := external.StripeClientConfig{
		SecretKey: cfg.StripeSecretKey.Unmask(),
		BaseURL:   cfg.StripeAPIBase,
		Timeout:   cfg.StripeTimeout,
		Logger:    logger,
	}
	if httpClient == nil {
		return external.NewStripeClient(sc)
	}
	base := external.NewBaseClient(httpClient, "stripe", external.DefaultRetryPolicy(), "PetCareBilling/1.0")
	return external.NewStripeClientWithBase(base, sc)
}

// prometheusNamespace lowercases a CloudWatch-style namespace into a valid
// Prometheus metric prefix (PetCareBilling -> pet_care_billing).
func prometheusNamespace(ns string) string {
	if ns == "" {
		return "petcare_billing"
	}
	out := make([]rune, 0, len(ns)+4)
	for i, r := range ns {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
			out = append(out, r+('a'-'A'))
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		default:
			if len(out) > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	return string(out)
}
