package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/picklepantry/api/internal/domain"
	pmongo "github.com/picklepantry/api/internal/platform/mongo"
	"github.com/picklepantry/api/internal/repositories"
)

// CartRepository persists one cart document per user, keyed by user id.
type CartRepository struct {
	provider *pmongo.Provider
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Mongo-backed cart repository.
func NewCartRepository(provider *pmongo.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires mongo provider")
	}
	return &CartRepository{provider: provider}, nil
}

// Get returns the user's cart, or an empty cart when none was saved yet.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	coll, err := r.provider.Collection(ctx, cartsCollection)
	if err != nil {
		return domain.Cart{}, err
	}
	var doc cartDocument
	if err := coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, pmongo.WrapError("mongo.carts.get", err)
	}
	return doc.cart(), nil
}

// Save replaces the stored cart.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	cart.UserID = strings.TrimSpace(cart.UserID)
	coll, err := r.provider.Collection(ctx, cartsCollection)
	if err != nil {
		return err
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": cart.UserID}, fromCart(cart), options.Replace().SetUpsert(true))
	return pmongo.WrapError("mongo.carts.save", err)
}

// Clear empties the cart while keeping the document.
func (r *CartRepository) Clear(ctx context.Context, userID string, clearedAt time.Time) error {
	return r.Save(ctx, domain.Cart{UserID: userID, UpdatedAt: clearedAt})
}
