package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
	pfirestore "github.com/picklepantry/api/internal/platform/firestore"
	"github.com/picklepantry/api/internal/repositories"
)

// CartRepository persists one cart document per user, keyed by user id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection),
	}, nil
}

// Get returns the user's cart, or an empty cart when none was saved yet.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(userID), nil
}

// Save replaces the stored cart.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	return r.base.Set(ctx, strings.TrimSpace(cart.UserID), newCartDocument(cart))
}

// Clear empties the cart while keeping the document.
func (r *CartRepository) Clear(ctx context.Context, userID string, clearedAt time.Time) error {
	return r.base.Set(ctx, strings.TrimSpace(userID), cartDocument{Items: []cartItemDocument{}, UpdatedAt: clearedAt.UTC()})
}
