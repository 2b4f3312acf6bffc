// Package secrets resolves secret:// and sm:// references against Google Secret Manager,
// with a process cache and a local fallback file for development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/picklepantry/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references. It satisfies config.SecretResolver.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
	meter        metric.Meter
}

// Option customises NewFetcher.
type Option func(*fetcherConfig)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithProject sets the project used for references without ?project=.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback file; empty disables it.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithSecretManagerClient injects a client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(meter metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = meter }
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created (no
// credentials in local runs) leaves the fetcher in fallback-only mode.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		projectID:    cfg.projectID,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
		client:       cfg.client,
	}
	latency, err := cfg.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"))
	if err != nil {
		cfg.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	} else {
		f.latency = latency
	}

	if f.client == nil && f.projectID != "" {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// GetSecret resolves a bare secret name, for webhook HMAC keys.
func (f *Fetcher) GetSecret(ctx context.Context, name string) (string, error) {
	return f.Resolve(ctx, "secret://"+strings.TrimSpace(name))
}

// Resolve returns the secret value for ref, consulting the cache, then Secret Manager, then
// the fallback file. The fallback is only used when Secret Manager is unreachable or denies
// access; a missing secret is an error.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	value, ok := f.cache[parsed.key()]
	f.mu.RUnlock()
	if ok {
		f.record(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = f.projectID
	}
	if f.client != nil && project != "" {
		value, err := f.fetchRemote(ctx, project, parsed)
		if err == nil {
			f.store(parsed, value)
			f.record(ctx, start, "remote")
			return value, nil
		}
		if !fallbackAllowed(err) {
			f.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.name, err)
		}
		f.logger.Debug("secrets: using fallback", zap.String("secret", parsed.name), zap.Error(err))
	}

	value, ok = f.lookupFallback(parsed)
	if !ok {
		f.record(ctx, start, "error")
		return "", fmt.Errorf("secrets: %s not found in fallback", parsed.name)
	}
	f.store(parsed, value)
	f.record(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops cached versions of ref so the next Resolve refetches it.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	delete(f.cache, parsed.key())
	f.mu.Unlock()
}

// Ready reports whether any secret source is available, for readiness probes.
func (f *Fetcher) Ready(context.Context) error {
	if f.client != nil {
		return nil
	}
	f.loadFallback()
	if len(f.fallback) == 0 {
		return errors.New("secrets: no secret manager client and no fallback values")
	}
	return nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
	retry := gax.WithRetry(func() gax.Retryer {
		return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
			Initial:    100 * time.Millisecond,
			Max:        2 * time.Second,
			Multiplier: 2,
		})
	})
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, retry)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) store(ref reference, value string) {
	f.mu.Lock()
	f.cache[ref.key()] = value
	f.mu.Unlock()
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.loadFallback()
	if value, ok := f.fallback[ref.key()]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.name]
	return value, ok
}

// loadFallback reads KEY=VALUE lines where KEY is a secret reference or bare name.
func (f *Fetcher) loadFallback() {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		file, err := os.Open(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("secrets: fallback file unreadable", zap.String("path", f.fallbackPath), zap.Error(err))
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			if parsed, err := parseReference(key); err == nil {
				f.fallback[parsed.key()] = value
				f.fallback[parsed.name] = value
				continue
			}
			f.fallback[key] = value
		}
	})
}

func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) key() string {
	return r.project + "/" + r.name + "#" + r.version
}

// parseReference accepts secret://name[?version=N&project=P] and the sm:// alias.
func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" && u.Scheme != "sm" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, errors.New("secrets: missing secret name")
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{name: name, version: version, project: strings.TrimSpace(u.Query().Get("project"))}, nil
}
