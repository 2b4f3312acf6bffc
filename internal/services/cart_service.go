package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/repositories"
)

const maxCartLines = maxCheckoutLines

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Prices   PriceEngine
	Clock    func() time.Time
	Logger   Logger
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	prices   PriceEngine
	clock    func() time.Time
	logger   Logger
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
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
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		prices:   prices,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.load(ctx, userID)
}

// AddItem prices the tier through the price engine and merges it into the cart.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID, productID, weight, err := cartKey(cmd.UserID, cmd.ProductID, cmd.Weight)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Cart{}, mapCatalogError(err, ErrCartInvalidInput)
	}
	if !product.IsAvailable {
		return Cart{}, fmt.Errorf("%w: product %s is not available", ErrCartInvalidInput, productID)
	}
	tier, ok := product.Tier(weight)
	if !ok {
		return Cart{}, fmt.Errorf("%w: product %s is not sold in %s", ErrCartInvalidInput, productID, weight)
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if len(cart.Items) >= maxCartLines && !hasCartRow(cart, productID, weight) {
		return Cart{}, fmt.Errorf("%w: cart is full", ErrCartInvalidInput)
	}

	now := s.clock()
	cart.Merge(CartItem{
		ProductID: productID,
		Weight:    weight,
		UnitPrice: s.prices.FinalPrice(tier.Price, product),
		Quantity:  cmd.Quantity,
		AddedAt:   now,
	})
	return s.save(ctx, cart, now)
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	userID, productID, weight, err := cartKey(cmd.UserID, cmd.ProductID, cmd.Weight)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if !cart.SetQuantity(productID, weight, cmd.Quantity) {
		return Cart{}, ErrCartItemNotFound
	}
	return s.save(ctx, cart, s.clock())
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID, productID, weight, err := cartKey(cmd.UserID, cmd.ProductID, cmd.Weight)
	if err != nil {
		return Cart{}, err
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if !cart.Remove(productID, weight) {
		return Cart{}, ErrCartItemNotFound
	}
	return s.save(ctx, cart, s.clock())
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.Clear(ctx, userID, s.clock()); err != nil && !repositories.IsNotFound(err) {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}

func (s *cartService) load(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{UserID: userID}, nil
		}
		return Cart{}, fmt.Errorf("cart: load: %w", err)
	}
	cart.UserID = userID
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		s.logger(ctx, "cart.save.failed", map[string]any{"user_id": cart.UserID, "error": err.Error()})
		return Cart{}, fmt.Errorf("cart: save: %w", err)
	}
	return cart, nil
}

func cartKey(userID, productID, rawWeight string) (string, string, domain.WeightTier, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return "", "", "", fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	weight, ok := domain.ParseWeightTier(rawWeight)
	if !ok {
		return "", "", "", fmt.Errorf("%w: unsupported weight %q", ErrCartInvalidInput, rawWeight)
	}
	return userID, productID, weight, nil
}

func hasCartRow(cart Cart, productID string, weight domain.WeightTier) bool {
	for _, item := range cart.Items {
		if item.ProductID == productID && item.Weight == weight {
			return true
		}
	}
	return false
}
