// Package main is the entry point for the billing webhook service.
//
// It loads configuration, connects to Postgres (and optionally Redis, SQS,
// CloudWatch and Sentry), wires the reconciler behind the Stripe webhook
// handler, and serves the chi router.
//
// Inside AWS Lambda the router is driven by API Gateway HTTP API events;
// everywhere else it runs as a standard HTTP server.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/getsentry/sentry-go"

	"petcare/internal/cache"
	"petcare/internal/config"
	"petcare/internal/core"
	"petcare/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(newSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("billing webhook service starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	deps, cleanup, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)

	srv, err := buildServer(cfg, logger, deps)
	if err != nil {
		cleanup()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Closers = append(srv.Closers, func() error { cleanup(); return nil })

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// connect opens every external connection named by cfg. The returned cleanup
// closes them in reverse order.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dependencies, func(), error) {
	var (
		deps    dependencies
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return deps, cleanup, fmt.Errorf("connecting to database: %w", err)
	}
	closers = append(closers, pool.Close)
	deps.DB = pool

	if !cfg.Cache.RedisURL.IsZero() {
		rdb, err := cache.NewClient(ctx, cfg.Cache)
		if err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn("redis unavailable, package cache disabled", "error", err)
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			deps.Redis = rdb
		}
	}

	needAWS := cfg.AWS.NotificationQueue != "" || cfg.Observability.MetricsBackend == metricsCloudWatch
	if needAWS {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			cleanup()
			return deps, func() {}, fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.AWS.NotificationQueue != "" {
			deps.SQS = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
		}
		if cfg.Observability.MetricsBackend == metricsCloudWatch {
			deps.CloudWatch = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
		}
	}

	if dsn := cfg.Observability.SentryDSN; !dsn.IsZero() {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn.Unmask(),
			Environment:      cfg.Environment,
			Release:          cfg.Build.Version,
			TracesSampleRate: cfg.Observability.SentrySampleRate,
		}); err != nil {
			logger.Warn("sentry init failed, alerts will only be logged", "error", err)
		} else {
			deps.Sentry = sentry.CurrentHub()
		}
	}

	return deps, cleanup, nil
}

// newSecretProvider picks the source for _SSM_PARAM pointers. LoadConfig
// ignores the provider when APP_ENV=local. SECRET_PROVIDER=env resolves the
// pointers from the environment instead, for stacks without SSM.
func newSecretProvider() config.SecretProvider {
	switch {
	case os.Getenv("APP_ENV") == "local":
		return nil
	case os.Getenv("SECRET_PROVIDER") == "env":
		return config.NewEnvVarProvider()
	default:
		return config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda serves API Gateway HTTP API events through the chi router.
// lambda.Start blocks for the life of the execution environment.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	lambda.Start(newLambdaHandler(srv.Handler()))
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Release pools and clients.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
