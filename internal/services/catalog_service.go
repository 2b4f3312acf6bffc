package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/textutil"
	"github.com/picklepantry/api/internal/repositories"
)

const (
	maxProductNameLength        = 120
	maxProductDescriptionLength = 2000
	maxProductCategoryLength    = 60
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Prices   PriceEngine
	Clock    func() time.Time
	Logger   Logger
}

type catalogService struct {
	products repositories.ProductRepository
	prices   PriceEngine
	clock    func() time.Time
	logger   Logger
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	prices := deps.Prices
	if prices == nil {
		prices = NewPriceEngine(clock)
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products: deps.Products,
		prices:   prices,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (ProductQuote, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ProductQuote{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return ProductQuote{}, mapCatalogError(err, ErrCatalogInvalidInput)
	}
	return s.prices.Quote(product), nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[ProductQuote], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:      strings.TrimSpace(filter.Category),
		AvailableOnly: !filter.IncludeUnavailable,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[ProductQuote]{}, mapCatalogError(err, ErrCatalogInvalidInput)
	}
	result := domain.CursorPage[ProductQuote]{
		Items:         make([]ProductQuote, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, product := range page.Items {
		result.Items = append(result.Items, s.prices.Quote(product))
	}
	return result, nil
}

// UpsertProduct validates and stores a product. Every weight tier must be priced and the
// discount must stay within 0..100.
func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (ProductQuote, error) {
	product, err := normalizeProduct(cmd.Product)
	if err != nil {
		return ProductQuote{}, err
	}
	now := s.clock()
	product.UpdatedAt = now
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return ProductQuote{}, mapCatalogError(err, ErrCatalogInvalidInput)
	}
	s.logger(ctx, "catalog.product.upserted", map[string]any{
		"product_id": saved.ID,
		"actor":      strings.TrimSpace(cmd.ActorID),
	})
	return s.prices.Quote(saved), nil
}

// DeleteProduct removes the product. Placed orders keep their item snapshots; the ledger
// skips lines whose product no longer exists.
func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapCatalogError(err, ErrCatalogInvalidInput)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{
		"product_id": productID,
		"actor":      strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func normalizeProduct(product Product) (Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" || strings.ContainsAny(product.ID, "/ ") {
		return Product{}, fmt.Errorf("%w: product id is required and may not contain spaces or slashes", ErrCatalogInvalidInput)
	}
	product.Name = textutil.CleanLimit(product.Name, maxProductNameLength)
	if product.Name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	product.Description = textutil.CleanLimit(product.Description, maxProductDescriptionLength)
	product.Category = strings.ToLower(textutil.CleanLimit(product.Category, maxProductCategoryLength))

	if product.Discount < 0 || product.Discount > 100 {
		return Product{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrCatalogInvalidInput)
	}
	if product.DiscountStartDate != nil && product.DiscountEndDate != nil && product.DiscountEndDate.Before(*product.DiscountStartDate) {
		return Product{}, fmt.Errorf("%w: discount end date precedes start date", ErrCatalogInvalidInput)
	}

	byWeight := make(map[domain.WeightTier]PriceTier, len(product.Prices))
	for _, tier := range product.Prices {
		weight, ok := domain.ParseWeightTier(string(tier.Weight))
		if !ok {
			return Product{}, fmt.Errorf("%w: unsupported weight %q", ErrCatalogInvalidInput, tier.Weight)
		}
		if _, dup := byWeight[weight]; dup {
			return Product{}, fmt.Errorf("%w: weight %s listed twice", ErrCatalogInvalidInput, weight)
		}
		if tier.Price < 0 || tier.Stock < 0 {
			return Product{}, fmt.Errorf("%w: price and stock for %s must not be negative", ErrCatalogInvalidInput, weight)
		}
		tier.Weight = weight
		byWeight[weight] = tier
	}
	tiers := make([]PriceTier, 0, len(domain.WeightTiers))
	for _, weight := range domain.WeightTiers {
		tier, ok := byWeight[weight]
		if !ok {
			return Product{}, fmt.Errorf("%w: price for %s is required", ErrCatalogInvalidInput, weight)
		}
		tiers = append(tiers, tier)
	}
	product.Prices = tiers
	return product, nil
}
