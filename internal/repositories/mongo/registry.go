package mongo

import (
	"context"
	"errors"
	"time"

	pmongo "github.com/picklepantry/api/internal/platform/mongo"
	"github.com/picklepantry/api/internal/repositories"
)

// Registry bundles the Mongo repositories behind repositories.Registry.
type Registry struct {
	provider *pmongo.Provider
	orders   *OrderRepository
	products *ProductRepository
	carts    *CartRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every Mongo repository against provider. A nil health repository
// falls back to a primary ping.
func NewRegistry(provider *pmongo.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("mongo registry requires provider")
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
			Name:    "mongo",
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

// Close disconnects the Mongo client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
