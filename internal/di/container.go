package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/picklepantry/api/internal/payments"
	"github.com/picklepantry/api/internal/platform/config"
	pfirestore "github.com/picklepantry/api/internal/platform/firestore"
	"github.com/picklepantry/api/internal/platform/idempotency"
	"github.com/picklepantry/api/internal/platform/jobs"
	pmongo "github.com/picklepantry/api/internal/platform/mongo"
	"github.com/picklepantry/api/internal/platform/observability"
	"github.com/picklepantry/api/internal/repositories"
	firestoreRepo "github.com/picklepantry/api/internal/repositories/firestore"
	"github.com/picklepantry/api/internal/repositories/memory"
	mongoRepo "github.com/picklepantry/api/internal/repositories/mongo"
	"github.com/picklepantry/api/internal/services"
)

const storagePingTimeout = 1500 * time.Millisecond

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentReconciler
	Catalog  services.CatalogService
	Cart     services.CartService
	Ledger   services.InventoryLedger
	System   services.SystemService
	Notifier *services.NotificationDispatcher
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Idempotency  idempotency.Store
	Publisher    jobs.Publisher
	Services     Services

	logger  *zap.Logger
	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	clock    func() time.Time
	build    services.BuildInfo
	registry repositories.Registry
	store    idempotency.Store
	pub      jobs.Publisher
	gateway  services.PaymentGateway
	checks   []repositories.DependencyCheck
}

// WithLogger sets the structured logger shared by services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides time.Now for every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo records version metadata reported by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) { o.build = info }
}

// WithRegistry bypasses backend selection and uses reg. The idempotency store falls back to
// memory unless WithIdempotencyStore is also supplied.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithIdempotencyStore overrides the idempotency store.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *options) { o.store = store }
}

// WithPublisher overrides the notification transport.
func WithPublisher(pub jobs.Publisher) Option {
	return func(o *options) { o.pub = pub }
}

// WithPaymentGateway overrides the payment provider manager.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *options) { o.gateway = gateway }
}

// WithDependencyChecks adds readiness probes beyond the storage ping.
func WithDependencyChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *options) { o.checks = append(o.checks, checks...) }
}

// NewContainer constructs the runtime dependencies for cfg. Resources opened along the way are
// released if a later step fails.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c = &Container{Config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	reg, store, err := c.openStorage(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	c.Repositories = reg
	c.Idempotency = store

	pub := o.pub
	if pub == nil {
		pub, err = c.openPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	c.Publisher = pub

	gateway := o.gateway
	if gateway == nil {
		gateway, err = newPaymentManager(cfg.PSP, o.logger)
		if err != nil {
			return nil, err
		}
	}

	c.Services, err = buildServices(cfg, reg, pub, gateway, o)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

func (c *Container) openStorage(ctx context.Context, cfg config.Config, o options) (repositories.Registry, idempotency.Store, error) {
	if o.registry != nil {
		store := o.store
		if store == nil {
			store = idempotency.NewMemoryStore()
		}
		return o.registry, store, nil
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	c.logger.Info("opening storage", zap.String("backend", backend))

	switch backend {
	case config.StorageBackendFirestore:
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Storage.Firestore, providerOpts...)
		client, err := provider.Client(ctx)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		health, err := newHealthRepository(o, "firestore", provider.Ping)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		reg, err := firestoreRepo.NewRegistry(provider, health)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, fmt.Errorf("firestore registry: %w", err)
		}
		c.onClose(reg.Close)
		store := o.store
		if store == nil {
			store = idempotency.NewFirestoreStore(client)
		}
		return reg, store, nil

	case config.StorageBackendMongo:
		provider, err := pmongo.NewProvider(cfg.Storage.Mongo)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo provider: %w", err)
		}
		health, err := newHealthRepository(o, "mongo", provider.Ping)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		reg, err := mongoRepo.NewRegistry(provider, health)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, fmt.Errorf("mongo registry: %w", err)
		}
		c.onClose(reg.Close)
		store := o.store
		if store == nil {
			store = idempotency.NewMongoStore(provider)
		}
		return reg, store, nil

	case config.StorageBackendMemory, "":
		mem := memory.NewStore()
		if len(o.checks) > 0 {
			health, err := newHealthRepository(o, "memory", func(context.Context) error { return nil })
			if err != nil {
				return nil, nil, err
			}
			mem = mem.WithHealth(health)
		}
		c.onClose(mem.Close)
		store := o.store
		if store == nil {
			store = idempotency.NewMemoryStore()
		}
		return mem, store, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}

func newHealthRepository(o options, name string, ping func(context.Context) error) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, len(o.checks)+1)
	checks = append(checks, repositories.DependencyCheck{
		Name:    name,
		Timeout: storagePingTimeout,
		Check:   ping,
	})
	checks = append(checks, o.checks...)
	return repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(o.clock))
}

func (c *Container) openPublisher(ctx context.Context, cfg config.Config) (jobs.Publisher, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Notifications.Backend))
	switch backend {
	case config.NotificationBackendPubSub:
		projectID := strings.TrimSpace(cfg.Firebase.ProjectID)
		if projectID == "" {
			projectID = strings.TrimSpace(cfg.Storage.Firestore.ProjectID)
		}
		var clientOpts []option.ClientOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(file))
		}
		client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		c.onClose(func(context.Context) error { return client.Close() })
		pub, err := jobs.NewPubSubPublisher(client.Topic(cfg.Notifications.Topic))
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return pub.Close() })
		return pub, nil

	case config.NotificationBackendKafka:
		pub, err := jobs.NewKafkaPublisher(cfg.Notifications.KafkaBrokers, cfg.Notifications.Topic)
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return pub.Close() })
		return pub, nil

	case config.NotificationBackendLog, "":
		return jobs.NewLogPublisher(c.logger.Named("notifications")), nil
	}
	return nil, fmt.Errorf("unsupported notification backend %q", cfg.Notifications.Backend)
}

func newPaymentManager(cfg config.PSPConfig, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	eventLogger := observability.EventLogger(logger.Named("payments"))

	if strings.TrimSpace(cfg.RazorpayKeyID) != "" {
		razorpay, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
			Logger:    eventLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("razorpay provider: %w", err)
		}
		providers[payments.ProviderRazorpay] = razorpay
	}
	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:         cfg.StripeAPIKey,
			PublishableKey: cfg.StripePublishable,
			Logger:         eventLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers[payments.ProviderStripe] = stripe
	}
	if len(providers) == 0 {
		return nil, errors.New("payments: no provider credentials configured")
	}

	var opts []payments.ManagerOption
	if provider := strings.TrimSpace(cfg.DefaultProvider); provider != "" {
		opts = append(opts, payments.WithDefaultProvider(provider))
	}
	return payments.NewManager(providers, opts...)
}

func buildServices(cfg config.Config, reg repositories.Registry, pub jobs.Publisher, gateway services.PaymentGateway, o options) (Services, error) {
	var svc Services
	eventLogger := observability.EventLogger(o.logger.Named("services"))
	prices := services.NewPriceEngine(o.clock)

	notifier, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Publisher: pub,
		Timeout:   cfg.Notifications.Timeout,
		Clock:     o.clock,
		Logger:    eventLogger,
	})
	if err != nil {
		return svc, fmt.Errorf("notification dispatcher: %w", err)
	}
	svc.Notifier = notifier

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Notifier:       notifier,
		Clock:          o.clock,
		Logger:         eventLogger,
		OTPTTL:         cfg.Delivery.OTPTTL,
		OTPMaxAttempts: cfg.Delivery.OTPMaxAttempts,
	})
	if err != nil {
		return svc, fmt.Errorf("order service: %w", err)
	}

	svc.Payments, err = services.NewPaymentReconciler(services.PaymentReconcilerDeps{
		Orders:   reg.Orders(),
		Products: reg.Products(),
		Carts:    reg.Carts(),
		Prices:   prices,
		Gateway:  gateway,
		Notifier: notifier,
		Currency: cfg.PSP.Currency,
		Clock:    o.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return svc, fmt.Errorf("payment reconciler: %w", err)
	}

	svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Prices:   prices,
		Clock:    o.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return svc, fmt.Errorf("catalog service: %w", err)
	}

	svc.Cart, err = services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Prices:   prices,
		Clock:    o.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return svc, fmt.Errorf("cart service: %w", err)
	}

	svc.Ledger, err = services.NewInventoryLedger(services.InventoryLedgerDeps{
		Orders: reg.Orders(),
		Clock:  o.clock,
		Logger: eventLogger,
	})
	if err != nil {
		return svc, fmt.Errorf("inventory ledger: %w", err)
	}

	svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            o.clock,
		Build:            o.build,
	})
	if err != nil {
		return svc, fmt.Errorf("system service: %w", err)
	}
	return svc, nil
}
