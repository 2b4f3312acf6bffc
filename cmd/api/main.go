package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/picklepantry/api/internal/di"
	"github.com/picklepantry/api/internal/handlers"
	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/platform/config"
	"github.com/picklepantry/api/internal/platform/idempotency"
	"github.com/picklepantry/api/internal/platform/observability"
	"github.com/picklepantry/api/internal/platform/secrets"
	"github.com/picklepantry/api/internal/repositories"
	"github.com/picklepantry/api/internal/services"
)

const (
	firebaseVerifyTimeout = 5 * time.Second
	shutdownTimeout       = 10 * time.Second
	otpAttemptWindow      = 15 * time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := services.BuildInfo{
		Version:     cfg.Server.Version,
		Environment: cfg.Security.Environment,
		StartedAt:   startedAt,
	}

	container, err := di.NewContainer(ctx, cfg,
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
		di.WithDependencyChecks(repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check:   fetcher.Ready,
		}),
	)
	if err != nil {
		logger.Fatal("failed to build dependency container", zap.Error(err))
	}
	svc := container.Services

	authenticator := buildAuthenticator(ctx, logger, cfg)

	idempotencyMiddleware := idempotency.Middleware(container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)
	cleaner := idempotency.NewCleaner(container.Idempotency,
		cfg.Idempotency.CleanupInterval,
		cfg.Idempotency.CleanupBatchSize,
		observability.NewPrintfAdapter(logger.Named("idempotency")),
	)
	cleaner.Start()

	handlerOpts := []handlers.HandlerOption{
		handlers.WithIdempotency(idempotencyMiddleware),
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		handlers.WithOTPRateLimit(cfg.Delivery.OTPMaxAttempts, otpAttemptWindow),
	}
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Payments, handlerOpts...)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments, handlerOpts...)
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Catalog, handlerOpts...)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart, handlerOpts...)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Orders, handlerOpts...)
	internalHandlers := handlers.NewInternalHandlers(svc.Ledger, handlerOpts...)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if hmacMiddleware := buildHMACMiddleware(logger, cfg, fetcher); hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	}
	if oidcMiddleware := buildOIDCMiddleware(logger, cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("picklepantry api listening",
			zap.String("storage", cfg.Storage.Backend),
			zap.String("notifications", cfg.Notifications.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := svc.Notifier.Wait(shutdownCtx); err != nil {
		logger.Warn("notifications still in flight at shutdown", zap.Error(err))
	}
	if err := cleaner.Stop(shutdownCtx); err != nil {
		logger.Warn("idempotency cleaner stop error", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("auth: firebase project not configured; customer routes will reject requests")
		return nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, firebaseVerifyTimeout)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	return auth.NewAuthenticator(verifier)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	adapter := observability.NewPrintfAdapter(logger.Named("oidc"))
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

// buildHMACMiddleware signs courier callbacks with the configured secret, falling back to
// Secret Manager when the name is absent from API_SECURITY_HMAC_SECRETS.
func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, fetcher *secrets.Fetcher) func(http.Handler) http.Handler {
	name := strings.TrimSpace(cfg.Delivery.CourierSecretName)
	if name == "" {
		return nil
	}

	static := auth.StaticSecrets(cfg.Security.HMAC.Secrets)
	provider := auth.SecretProviderFunc(func(ctx context.Context, secret string) (string, error) {
		if value, err := static.GetSecret(ctx, secret); err == nil && value != "" {
			return value, nil
		}
		return fetcher.GetSecret(ctx, secret)
	})

	validator := auth.NewHMACValidator(provider, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger.Named("hmac"))),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACWindow(cfg.Security.HMAC.ClockSkew, cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(name)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Storage.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve to a non-empty value given which
// integrations the environment turns on.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PSP_RAZORPAY_KEY_ID"]) != "" {
		required = append(required, "PSP.RazorpayKeySecret")
	}
	if strings.TrimSpace(env["API_PSP_STRIPE_PUBLISHABLE_KEY"]) != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_STORAGE_BACKEND"]), config.StorageBackendMongo) {
		required = append(required, "Storage.Mongo.URI")
	}
	return required
}
