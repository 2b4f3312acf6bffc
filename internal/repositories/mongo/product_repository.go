package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/picklepantry/api/internal/domain"
	pmongo "github.com/picklepantry/api/internal/platform/mongo"
	"github.com/picklepantry/api/internal/platform/pagination"
	"github.com/picklepantry/api/internal/repositories"
)

// ProductRepository reads and upserts catalog products.
type ProductRepository struct {
	provider *pmongo.Provider
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Mongo-backed product repository.
func NewProductRepository(provider *pmongo.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires mongo provider")
	}
	return &ProductRepository{provider: provider}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	coll, err := r.provider.Collection(ctx, productsCollection)
	if err != nil {
		return domain.Product{}, err
	}
	var doc productDocument
	if err := coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(productID)}).Decode(&doc); err != nil {
		return domain.Product{}, pmongo.WrapError("mongo.products.get", err)
	}
	return doc.product(), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize)

	query := bson.M{}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query["category"] = category
	}
	if filter.AvailableOnly {
		query["isAvailable"] = true
	}
	if !cursor.IsZero() {
		query["$or"] = afterCursor(cursor)
	}

	coll, err := r.provider.Collection(ctx, productsCollection)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	cur, err := coll.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(pageSize+1)))
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pmongo.WrapError("mongo.products.list", err)
	}
	var docs []productDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domain.CursorPage[domain.Product]{}, pmongo.WrapError("mongo.products.list", err)
	}

	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.product())
	}
	if len(page.Items) > pageSize {
		page.Items = page.Items[:pageSize]
		last := page.Items[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Upsert replaces the product document. createdAt is only written on insert.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	coll, err := r.provider.Collection(ctx, productsCollection)
	if err != nil {
		return domain.Product{}, err
	}
	doc := fromProduct(product)
	set := bson.M{
		"name":              doc.Name,
		"description":       doc.Description,
		"category":          doc.Category,
		"prices":            doc.Prices,
		"discount":          doc.Discount,
		"isDiscountActive":  doc.IsDiscountActive,
		"discountStartDate": doc.DiscountStartDate,
		"discountEndDate":   doc.DiscountEndDate,
		"isAvailable":       doc.IsAvailable,
		"updatedAt":         doc.UpdatedAt,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": doc.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved productDocument
	if err := coll.FindOneAndUpdate(ctx, bson.M{"_id": doc.ID}, update, opts).Decode(&saved); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return product, nil
		}
		return domain.Product{}, pmongo.WrapError("mongo.products.upsert", err)
	}
	return saved.product(), nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	coll, err := r.provider.Collection(ctx, productsCollection)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": strings.TrimSpace(productID)})
	if err != nil {
		return pmongo.WrapError("mongo.products.delete", err)
	}
	if res.DeletedCount == 0 {
		return repositories.NotFound("mongo.products.delete", "product not found")
	}
	return nil
}
