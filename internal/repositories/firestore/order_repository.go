package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/pagination"
	pfirestore "github.com/picklepantry/api/internal/platform/firestore"
	"github.com/picklepantry/api/internal/repositories"
)

// OrderRepository persists orders in Firestore. Mutations run inside a Firestore transaction
// that also reads and writes the product documents touched by the stock ledger.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// Insert creates the order document. A duplicate id is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first, optionally narrowed to a user and statuses.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(page.Items) > pageSize {
		page.Items = page.Items[:pageSize]
		last := page.Items[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Mutate reads the order inside a transaction, applies mutate and commits the result. When
// the change asks for stock and the order has not decremented yet, every product touched by
// the order is read and rewritten in the same transaction, so the stock flag and the tier
// writes land together. Contention retries rerun mutate against a fresh read.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, mutate repositories.OrderMutator) (repositories.OrderMutation, error) {
	orderID = strings.TrimSpace(orderID)
	var result repositories.OrderMutation

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.OrderMutation{}

		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.Abort(repositories.NotFound("firestore.orders.mutate", "order not found"))
			}
			return err
		}
		doc, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		before := doc.Data.toDomain(doc.ID)

		change, err := mutate(doc.Data.toDomain(doc.ID))
		if err != nil {
			return pfirestore.Abort(err)
		}
		if change.Skip {
			result = repositories.OrderMutation{Before: before, Order: before}
			return nil
		}

		next := repositories.ResolveOrderChange(before, change)
		var outcome domain.LedgerOutcome

		if change.ApplyStock && !before.StockDecremented {
			loaded, refs, err := r.loadProducts(ctx, tx, next.Items)
			if err != nil {
				return err
			}
			changed, planned := repositories.PlanStockDecrement(next.Items, loaded)
			for id, product := range changed {
				updates := []firestore.Update{
					{Path: "prices", Value: encodeTiers(product.Prices)},
					{Path: "updatedAt", Value: next.UpdatedAt.UTC()},
				}
				if err := tx.Update(refs[id], updates); err != nil {
					return repositories.WithOrder(pfirestore.WrapError("firestore.products.decrement", err), orderID, id)
				}
			}
			outcome = planned
			outcome.Applied = true
			next.StockDecremented = true
		}

		if err := tx.Set(orderRef, newOrderDocument(next)); err != nil {
			return pfirestore.WrapError("firestore.orders.mutate", err)
		}
		result = repositories.OrderMutation{Before: before, Order: next, Ledger: outcome}
		return nil
	})
	if err != nil {
		return repositories.OrderMutation{}, repositories.WithOrder(err, orderID, "")
	}
	return result, nil
}

func (r *OrderRepository) loadProducts(ctx context.Context, tx *firestore.Transaction, items []domain.OrderItem) (map[string]domain.Product, map[string]*firestore.DocumentRef, error) {
	ids := repositories.LedgerProductIDs(items)
	loaded := make(map[string]domain.Product, len(ids))
	refs := make(map[string]*firestore.DocumentRef, len(ids))

	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return nil, nil, pfirestore.WrapError("firestore.products.read", err)
		}
		doc, err := r.products.Decode(snap)
		if err != nil {
			return nil, nil, err
		}
		loaded[id] = doc.Data.toDomain(id)
		refs[id] = ref
	}
	return loaded, refs, nil
}

// Stats folds every order into per-status counts and amounts.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	coll, err := r.orders.Collection(ctx)
	if err != nil {
		return domain.OrderStats{}, err
	}

	iter := coll.Select("status", "totalAmount").Documents(ctx)
	defer iter.Stop()

	stats := domain.OrderStats{ByStatus: make(map[domain.OrderStatus]domain.OrderStatusStats)}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.OrderStats{}, pfirestore.WrapError("firestore.orders.stats", err)
		}
		var row struct {
			Status      string `firestore:"status"`
			TotalAmount int64  `firestore:"totalAmount"`
		}
		if err := snap.DataTo(&row); err != nil {
			return domain.OrderStats{}, pfirestore.WrapError("firestore.orders.stats", err)
		}
		stats.Add(domain.OrderStatus(row.Status), row.TotalAmount)
	}
	return stats, nil
}
