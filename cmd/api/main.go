package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/meridian-goods/shipping-api/internal/checkout"
	"github.com/meridian-goods/shipping-api/internal/domain"
	"github.com/meridian-goods/shipping-api/internal/handlers"
	"github.com/meridian-goods/shipping-api/internal/platform/auth"
	"github.com/meridian-goods/shipping-api/internal/platform/config"
	pfirestore "github.com/meridian-goods/shipping-api/internal/platform/firestore"
	"github.com/meridian-goods/shipping-api/internal/platform/observability"
	"github.com/meridian-goods/shipping-api/internal/platform/secrets"
	"github.com/meridian-goods/shipping-api/internal/registry"
	"github.com/meridian-goods/shipping-api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("shipping")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

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

	metrics := observability.NewMetrics(nil, logger.Named("metrics"))

	var firestoreProvider *pfirestore.Provider
	source, err := buildRegistrySource(ctx, cfg, &firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise registry source", zap.Error(err))
	}
	if firestoreProvider != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	store, err := registry.NewStore(source, registry.WithLogger(logger.Named("registry")))
	if err != nil {
		logger.Fatal("failed to initialise registry store", zap.Error(err))
	}
	if err := store.Reload(ctx); err != nil {
		logger.Fatal("initial registry load failed", zap.Error(err))
	}
	metrics.RecordRegistryReload(ctx, true)

	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	var reloadWG sync.WaitGroup
	if cfg.Registry.ReloadInterval > 0 {
		reloadWG.Add(1)
		go func() {
			defer reloadWG.Done()
			store.RunPeriodicReload(reloadCtx, cfg.Registry.ReloadInterval)
		}()
	}

	meteredStore := &meteredRegistryStore{store: store, metrics: metrics}

	quoteLogger := logger.Named("quotes")
	quoteService, err := services.NewQuoteService(services.QuoteServiceDeps{
		Registry:          store,
		Metrics:           metrics,
		PackingFactor:     cfg.Engine.PackingFactor,
		DefaultPriority:   domain.NormalizeRankPriority(cfg.Engine.DefaultPriority),
		AffiliateTracking: cfg.Features.EnableAffiliateTracking,
		Logger:            zapEventLogger(quoteLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise quote service", zap.Error(err))
	}

	shippingHandlers := handlers.NewShippingHandlers(quoteService,
		handlers.WithQuoteRateLimit(120, time.Minute),
	)

	var checkoutHandlers *handlers.CheckoutHandlers
	if cfg.Features.EnableCheckoutSessions {
		stripeProvider, err := checkout.NewStripeProvider(checkout.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: zapEventLogger(logger.Named("checkout")),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		checkoutHandlers = handlers.NewCheckoutHandlers(quoteService, stripeProvider)
	}

	webhookHandlers := handlers.NewWebhookHandlers(quoteService, meteredStore, zapEventLogger(logger.Named("webhooks")))
	internalHandlers := handlers.NewInternalHandlers(meteredStore)

	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg, metrics)

	projectID := cfg.Registry.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessCheck("registry", store),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if checkoutHandlers != nil {
		opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
	}
	if hmacMiddleware != nil {
		opts = append(opts,
			handlers.WithWebhookMiddlewares(hmacMiddleware),
			handlers.WithInternalMiddlewares(hmacMiddleware),
		)
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
		serverLogger.Info("shipping api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	reloadCancel()
	reloadWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// meteredRegistryStore decorates the store so operator-triggered reloads feed
// the reload counter.
type meteredRegistryStore struct {
	store   *registry.Store
	metrics *observability.Metrics
}

func (m *meteredRegistryStore) Reload(ctx context.Context) error {
	err := m.store.Reload(ctx)
	m.metrics.RecordRegistryReload(ctx, err == nil)
	return err
}

func (m *meteredRegistryStore) Snapshot() (*registry.Snapshot, error) {
	return m.store.Snapshot()
}

func buildRegistrySource(ctx context.Context, cfg config.Config, provider **pfirestore.Provider) (registry.Source, error) {
	switch cfg.Registry.Source {
	case config.RegistrySourceFile:
		return registry.NewFileSource(cfg.Registry.FilePath)
	case config.RegistrySourceFirestore:
		p := pfirestore.NewProvider(cfg.Registry)
		if _, err := p.Client(ctx); err != nil {
			return nil, err
		}
		*provider = p
		return registry.NewFirestoreSource(p, registry.FirestoreSourceConfig{
			PartnersCollection: cfg.Registry.PartnersCollection,
			ZonesCollection:    cfg.Registry.ZonesCollection,
			MetaDocument:       cfg.Registry.MetaDocument,
		})
	default:
		return nil, fmt.Errorf("unknown registry source %q", cfg.Registry.Source)
	}
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info("event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}
	version := lookup("SHIPPING_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   lookup("SHIPPING_BUILD_COMMIT"),
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, metrics *observability.Metrics) func(http.Handler) http.Handler {
	secretValues := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secretValues[strings.ToLower(key)] = value
	}
	if len(secretValues) == 0 {
		return nil
	}

	provider := auth.SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return "", errors.New("auth: secret name required")
		}
		if secret, ok := secretValues[key]; ok && secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("auth: no signing key for %q", key)
	})
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACMetrics(auth.MetricsRecorderFunc(metrics.RecordVerification)),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	return validator.RequireHMACResolver(callerSecretResolver(secretValues))
}

// callerSecretResolver picks the signing secret for a request: the last path
// segment under /webhooks/ names the caller, anything else uses "default".
func callerSecretResolver(secrets map[string]string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		path := r.URL.Path
		if idx := strings.Index(path, "/webhooks/"); idx >= 0 {
			caller := strings.ToLower(strings.Trim(path[idx+len("/webhooks/"):], "/"))
			if caller != "" {
				if secret, ok := secrets[caller]; ok && secret != "" {
					return caller, true
				}
			}
		}
		if secret, ok := secrets["default"]; ok && secret != "" {
			return "default", true
		}
		return "", false
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("SHIPPING_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("SHIPPING_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("SHIPPING_REGISTRY_PROJECT_ID")
	}
	fallbackPath := lookup("SHIPPING_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("SHIPPING_REGISTRY_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	var required []string
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}
	if isSecretReference(lookup("SHIPPING_PSP_STRIPE_API_KEY")) {
		required = append(required, "PSP.StripeAPIKey")
	}
	if isSecretReference(lookup("SHIPPING_PSP_STRIPE_WEBHOOK_SECRET")) {
		required = append(required, "PSP.StripeWebhookSecret")
	}
	return required
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["SHIPPING_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}
