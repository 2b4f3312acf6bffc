package firestore

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/picklepantry/api/internal/platform/firestore"
	"github.com/picklepantry/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	products *ProductRepository
	carts    *CartRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every Firestore repository against provider. health may be nil, in
// which case a Firestore ping is used.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	if health == nil {
		health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check:   provider.Ping,
		}})
		if err != nil {
			return nil, err
		}
	}
	return &Registry{provider: provider, orders: orders, products: products, carts: carts, health: health}, nil
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Carts() repositories.CartRepository       { return r.carts }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
