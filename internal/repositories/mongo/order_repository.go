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
	"github.com/picklepantry/api/internal/platform/pagination"
	"github.com/picklepantry/api/internal/repositories"
)

// OrderRepository persists orders in MongoDB. Mutations run inside a session transaction
// that also applies the stock ledger to the product collection.
type OrderRepository struct {
	provider *pmongo.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Mongo-backed order repository.
func NewOrderRepository(provider *pmongo.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires mongo provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) orders(ctx context.Context) (*mongo.Collection, error) {
	return r.provider.Collection(ctx, ordersCollection)
}

func (r *OrderRepository) products(ctx context.Context) (*mongo.Collection, error) {
	return r.provider.Collection(ctx, productsCollection)
}

// Insert creates the order document. A duplicate id is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	coll, err := r.orders(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, fromOrder(order)); err != nil {
		return pmongo.WrapError("mongo.orders.insert", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	coll, err := r.orders(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	var doc orderDocument
	if err := coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(orderID)}).Decode(&doc); err != nil {
		return domain.Order{}, pmongo.WrapError("mongo.orders.get", err)
	}
	return doc.order(), nil
}

// List returns orders newest first, optionally narrowed to a user and statuses.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize)

	query := bson.M{}
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query["userId"] = userID
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query["status"] = bson.M{"$in": statuses}
	}
	if !cursor.IsZero() {
		query["$or"] = afterCursor(cursor)
	}

	coll, err := r.orders(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(pageSize + 1))
	cur, err := coll.Find(ctx, query, opts)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pmongo.WrapError("mongo.orders.list", err)
	}
	var docs []orderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domain.CursorPage[domain.Order]{}, pmongo.WrapError("mongo.orders.list", err)
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.order())
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

// Mutate reads the order inside a session transaction, applies mutate and replaces the
// document only if it has not changed since the read. Stock lines are applied with a
// per-tier pipeline update clamped at zero, committed together with the order flag.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, mutate repositories.OrderMutator) (repositories.OrderMutation, error) {
	orderID = strings.TrimSpace(orderID)
	orders, err := r.orders(ctx)
	if err != nil {
		return repositories.OrderMutation{}, err
	}
	products, err := r.products(ctx)
	if err != nil {
		return repositories.OrderMutation{}, err
	}

	var result repositories.OrderMutation
	err = r.provider.RunTransaction(ctx, func(sc mongo.SessionContext) error {
		result = repositories.OrderMutation{}

		var doc orderDocument
		if err := orders.FindOne(sc, bson.M{"_id": orderID}).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return pmongo.Abort(repositories.NotFound("mongo.orders.mutate", "order not found"))
			}
			return err
		}
		before := doc.order()

		change, err := mutate(doc.order())
		if err != nil {
			return pmongo.Abort(err)
		}
		if change.Skip {
			result = repositories.OrderMutation{Before: before, Order: before}
			return nil
		}

		next := repositories.ResolveOrderChange(before, change)
		var outcome domain.LedgerOutcome

		if change.ApplyStock && !before.StockDecremented {
			loaded, err := loadProducts(sc, products, next.Items)
			if err != nil {
				return err
			}
			_, planned := repositories.PlanStockDecrement(next.Items, loaded)
			for _, line := range planned.Lines {
				if err := decrementTier(sc, products, line, next.UpdatedAt); err != nil {
					return pmongo.Abort(repositories.WithOrder(pmongo.WrapError("mongo.products.decrement", err), orderID, line.ProductID))
				}
			}
			outcome = planned
			outcome.Applied = true
			next.StockDecremented = true
		}

		replaced, err := orders.ReplaceOne(sc, bson.M{"_id": orderID, "updatedAt": doc.UpdatedAt}, fromOrder(next))
		if err != nil {
			return err
		}
		if replaced.MatchedCount == 0 {
			return pmongo.Abort(repositories.NewStoreError("mongo.orders.mutate", repositories.StoreErrorConflict, "order changed concurrently", nil))
		}
		result = repositories.OrderMutation{Before: before, Order: next, Ledger: outcome}
		return nil
	})
	if err != nil {
		return repositories.OrderMutation{}, repositories.WithOrder(err, orderID, "")
	}
	return result, nil
}

func loadProducts(ctx context.Context, coll *mongo.Collection, items []domain.OrderItem) (map[string]domain.Product, error) {
	ids := repositories.LedgerProductIDs(items)
	cur, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, pmongo.WrapError("mongo.products.read", err)
	}
	var docs []productDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, pmongo.WrapError("mongo.products.read", err)
	}
	loaded := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		loaded[doc.ID] = doc.product()
	}
	return loaded, nil
}

// decrementTier lowers one weight tier by the line quantity without going below zero.
func decrementTier(ctx context.Context, coll *mongo.Collection, line domain.LedgerLine, at time.Time) error {
	weight := string(line.Weight)
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"updatedAt": at.UTC(),
			"prices": bson.M{"$map": bson.M{
				"input": "$prices",
				"as":    "tier",
				"in": bson.M{"$cond": bson.A{
					bson.M{"$eq": bson.A{"$$tier.weight", weight}},
					bson.M{"$mergeObjects": bson.A{
						"$$tier",
						bson.M{"stock": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$$tier.stock", line.Quantity}}}}},
					}},
					"$$tier",
				}},
			}},
		}}},
	}
	_, err := coll.UpdateOne(ctx, bson.M{"_id": line.ProductID, "prices.weight": weight}, pipeline)
	return err
}

// Stats groups orders by status on the server.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	coll, err := r.orders(ctx)
	if err != nil {
		return domain.OrderStats{}, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
			"total": bson.M{"$sum": "$totalAmount"},
		}}},
	}
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.OrderStats{}, pmongo.WrapError("mongo.orders.stats", err)
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
		Total  int64  `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return domain.OrderStats{}, pmongo.WrapError("mongo.orders.stats", err)
	}

	stats := domain.OrderStats{ByStatus: make(map[domain.OrderStatus]domain.OrderStatusStats)}
	for _, row := range rows {
		stats.AddGroup(domain.OrderStatus(row.Status), row.Count, row.Total)
	}
	return stats, nil
}

func afterCursor(cursor pagination.Cursor) bson.A {
	return bson.A{
		bson.M{"createdAt": bson.M{"$lt": cursor.CreatedAt.UTC()}},
		bson.M{"createdAt": cursor.CreatedAt.UTC(), "_id": bson.M{"$lt": cursor.ID}},
	}
}
