package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 20 * time.Second
	defaultMaxBodyBytes        = 1 << 20
	defaultStorageBackend      = StorageBackendFirestore
	defaultMongoDatabase       = "picklepantry"
	defaultMongoConnectTimeout = 10 * time.Second
	defaultCurrency            = "INR"
	defaultPSPProvider         = "razorpay"
	defaultRazorpayBaseURL     = "https://api.razorpay.com"
	defaultNotifyBackend       = NotificationBackendLog
	defaultNotifyTopic         = "order-events"
	defaultNotifyTimeout       = 10 * time.Second
	defaultOTPTTL              = 24 * time.Hour
	defaultOTPMaxAttempts      = 5
	defaultCourierSecretName   = "courier"
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultHMACSignatureHeader = "X-Signature"
	defaultHMACTimestampHeader = "X-Signature-Timestamp"
	defaultHMACNonceHeader     = "X-Signature-Nonce"
	defaultHMACClockSkew       = 5 * time.Minute
	defaultHMACNonceTTL        = 5 * time.Minute
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
)

// Storage backends understood by the repository layer.
const (
	StorageBackendFirestore = "firestore"
	StorageBackendMongo     = "mongo"
	StorageBackendMemory    = "memory"
)

// Notification transports understood by the dispatcher.
const (
	NotificationBackendPubSub = "pubsub"
	NotificationBackendKafka  = "kafka"
	NotificationBackendLog    = "log"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Storage       StorageConfig
	PSP           PSPConfig
	Notifications NotificationConfig
	Delivery      DeliveryConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Version        string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// StorageConfig selects the document store and carries its connection settings.
type StorageConfig struct {
	Backend   string
	Firestore FirestoreConfig
	Mongo     MongoConfig
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// MongoConfig stores MongoDB connection parameters.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// PSPConfig collects payment provider credentials.
type PSPConfig struct {
	DefaultProvider     string
	Currency            string
	RazorpayKeyID       string
	RazorpayKeySecret   string
	RazorpayBaseURL     string
	StripeAPIKey        string
	StripePublishable   string
	StripeWebhookSecret string
}

// NotificationConfig selects the event transport for customer notifications.
type NotificationConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
	Timeout      time.Duration
}

// DeliveryConfig controls delivery OTPs and courier integrations.
type DeliveryConfig struct {
	OTPTTL            time.Duration
	OTPMaxAttempts    int
	CourierSecretName string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
	HMAC        HMACConfig
}

// OIDCConfig controls Google-signed token verification on internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// HMACConfig captures webhook signing expectations.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Secret names are redacted.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the missing secret identifiers, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns short hashes of the missing identifiers, safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	names := e.Names()
	for i, name := range names {
		sum := sha256.Sum256([]byte(name))
		names[i] = hex.EncodeToString(sum[:8])
	}
	sort.Strings(names)
	return names
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "PSP.RazorpayKeySecret" or
// "Security.HMAC.Secrets[courier]") that must resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map) so callers
// can build dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = value
			}
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables and Secret Manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			MaxBodyBytes:   int64(intWithDefault(lookup, "API_SERVER_MAX_BODY_BYTES", defaultMaxBodyBytes)),
			Version:        stringWithDefault(lookup, "API_VERSION", "dev"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_STORAGE_BACKEND", defaultStorageBackend)),
			Firestore: FirestoreConfig{
				ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
				EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
			},
			Mongo: MongoConfig{
				URI:            stringWithDefault(lookup, "API_MONGO_URI", ""),
				Database:       stringWithDefault(lookup, "API_MONGO_DATABASE", defaultMongoDatabase),
				ConnectTimeout: durationWithDefault(lookup, "API_MONGO_CONNECT_TIMEOUT", defaultMongoConnectTimeout),
			},
		},
		PSP: PSPConfig{
			DefaultProvider:     strings.ToLower(stringWithDefault(lookup, "API_PSP_DEFAULT_PROVIDER", defaultPSPProvider)),
			Currency:            strings.ToUpper(stringWithDefault(lookup, "API_PSP_CURRENCY", defaultCurrency)),
			RazorpayKeyID:       stringWithDefault(lookup, "API_PSP_RAZORPAY_KEY_ID", ""),
			RazorpayKeySecret:   stringWithDefault(lookup, "API_PSP_RAZORPAY_KEY_SECRET", ""),
			RazorpayBaseURL:     stringWithDefault(lookup, "API_PSP_RAZORPAY_BASE_URL", defaultRazorpayBaseURL),
			StripeAPIKey:        stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripePublishable:   stringWithDefault(lookup, "API_PSP_STRIPE_PUBLISHABLE_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "API_PSP_STRIPE_WEBHOOK_SECRET", ""),
		},
		Notifications: NotificationConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "API_NOTIFY_BACKEND", defaultNotifyBackend)),
			Topic:        stringWithDefault(lookup, "API_NOTIFY_TOPIC", defaultNotifyTopic),
			KafkaBrokers: csvWithDefault(lookup, "API_NOTIFY_KAFKA_BROKERS"),
			Timeout:      durationWithDefault(lookup, "API_NOTIFY_TIMEOUT", defaultNotifyTimeout),
		},
		Delivery: DeliveryConfig{
			OTPTTL:            durationWithDefault(lookup, "API_DELIVERY_OTP_TTL", defaultOTPTTL),
			OTPMaxAttempts:    intWithDefault(lookup, "API_DELIVERY_OTP_MAX_ATTEMPTS", defaultOTPMaxAttempts),
			CourierSecretName: strings.ToLower(stringWithDefault(lookup, "API_DELIVERY_COURIER_SECRET_NAME", defaultCourierSecretName)),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
			HMAC: HMACConfig{
				Secrets:         mapWithDefault(lookup, "API_SECURITY_HMAC_SECRETS"),
				SignatureHeader: stringWithDefault(lookup, "API_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: stringWithDefault(lookup, "API_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     stringWithDefault(lookup, "API_SECURITY_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       durationWithDefault(lookup, "API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        durationWithDefault(lookup, "API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	if cfg.Storage.Firestore.ProjectID == "" {
		cfg.Storage.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved := make(map[string]string)
	resolve := func(name string, field *string) error {
		value, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = value
		resolved[name] = strings.TrimSpace(value)
		return nil
	}

	for key := range cfg.Security.HMAC.Secrets {
		value := cfg.Security.HMAC.Secrets[key]
		if err := resolve(fmt.Sprintf("Security.HMAC.Secrets[%s]", key), &value); err != nil {
			return Config{}, err
		}
		cfg.Security.HMAC.Secrets[key] = value
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.RazorpayKeySecret", &cfg.PSP.RazorpayKeySecret},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Storage.Mongo.URI", &cfg.Storage.Mongo.URI},
	}
	for _, target := range secretFields {
		if err := resolve(target.name, target.field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Server.MaxBodyBytes > 0, "Server.MaxBodyBytes")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")

	switch cfg.Storage.Backend {
	case StorageBackendFirestore:
		require(cfg.Storage.Firestore.ProjectID != "", "Storage.Firestore.ProjectID")
	case StorageBackendMongo:
		require(cfg.Storage.Mongo.URI != "", "Storage.Mongo.URI")
		require(cfg.Storage.Mongo.Database != "", "Storage.Mongo.Database")
	case StorageBackendMemory:
	default:
		missing = append(missing, "Storage.Backend")
	}

	switch cfg.PSP.DefaultProvider {
	case "razorpay", "stripe":
	default:
		missing = append(missing, "PSP.DefaultProvider")
	}
	require(len(cfg.PSP.Currency) == 3, "PSP.Currency")

	switch cfg.Notifications.Backend {
	case NotificationBackendPubSub:
		require(cfg.Notifications.Topic != "", "Notifications.Topic")
	case NotificationBackendKafka:
		require(cfg.Notifications.Topic != "", "Notifications.Topic")
		require(len(cfg.Notifications.KafkaBrokers) > 0, "Notifications.KafkaBrokers")
	case NotificationBackendLog:
	default:
		missing = append(missing, "Notifications.Backend")
	}

	require(cfg.Delivery.OTPTTL > 0, "Delivery.OTPTTL")
	require(cfg.Delivery.OTPMaxAttempts > 0, "Delivery.OTPMaxAttempts")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var names []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, _ := lookup(key)
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// mapWithDefault parses "name=value,name2=value2" pairs. Names are lower-cased.
func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, _ := lookup(key)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
