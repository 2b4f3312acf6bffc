// Package mongo manages the shared MongoDB client used by the mongo repository backend.
package mongo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/picklepantry/api/internal/platform/config"
)

const defaultConnectTimeout = 10 * time.Second

// Provider lazily connects a MongoDB client and hands out database handles.
type Provider struct {
	cfg config.MongoConfig

	mu     sync.Mutex
	client *mongo.Client
	closed bool
}

// NewProvider validates cfg and returns a provider. No connection is made until first use.
func NewProvider(cfg config.MongoConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongo provider: uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("mongo provider: database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Provider{cfg: cfg}, nil
}

// Client connects on first call and pings the primary before returning.
func (p *Provider) Client(ctx context.Context) (*mongo.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("mongo provider: closed")
	}
	if p.client != nil {
		return p.client, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(p.cfg.URI))
	if err != nil {
		return nil, WrapError("mongo.connect", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, WrapError("mongo.ping", err)
	}
	p.client = client
	return client, nil
}

// Database returns the configured database handle.
func (p *Provider) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := p.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(p.cfg.Database), nil
}

// Collection returns a collection handle from the configured database.
func (p *Provider) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := p.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping checks connectivity for readiness probes.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return WrapError("mongo.ping", err)
	}
	return nil
}

// Close disconnects the client. Subsequent calls are no-ops.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Disconnect(ctx)
	p.client = nil
	return err
}

// RunTransaction executes fn inside a session transaction. The driver retries the callback on
// transient transaction errors, so fn must be safe to rerun.
func (p *Provider) RunTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	session, err := client.StartSession()
	if err != nil {
		return WrapError("mongo.session", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		var abort *abortError
		if errors.As(err, &abort) {
			return abort.err
		}
		return WrapError("mongo.transaction", err)
	}
	return nil
}

type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Abort marks err as an application decision so RunTransaction returns it untouched.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}
