package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/pagination"
	pfirestore "github.com/picklepantry/api/internal/platform/firestore"
	"github.com/picklepantry/api/internal/repositories"
)

// ProductRepository reads and upserts catalog products.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns products newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.AvailableOnly {
			q = q.Where("isAvailable", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
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

// Upsert writes the product, keeping the original creation time when it already exists.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	ref, err := r.base.DocumentRef(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}
	var saved domain.Product
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		saved = product
		snap, err := tx.Get(ref)
		if err == nil {
			if existing, decodeErr := r.base.Decode(snap); decodeErr == nil && !existing.Data.CreatedAt.IsZero() {
				saved.CreatedAt = existing.Data.CreatedAt
			}
		} else if !isNotFound(err) {
			return err
		}
		return tx.Set(ref, newProductDocument(saved))
	})
	if err != nil {
		return domain.Product{}, err
	}
	return saved, nil
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(productID))
}
