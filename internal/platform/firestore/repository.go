package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping Firestore collection access. T is the
// storage document struct carrying firestore tags.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
	}
}

// Create writes a new document and fails with a conflict when the id is taken.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, value); err != nil {
		return WrapError(r.op("create"), err)
	}
	return nil
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, value); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Get fetches the document by ID and decodes it.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.Decode(snapshot)
}

// Delete removes the document and fails with not found when it does not exist.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx, firestore.Exists); err != nil {
		return WrapError(r.op("delete"), err)
	}
	return nil
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.Decode(snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Decode converts a snapshot, typically read inside a transaction, into a typed document.
func (r *BaseRepository[T]) Decode(snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snapshot.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       data,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

// DocumentRef exposes the underlying document reference for transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Collection exposes the collection reference for aggregation queries.
func (r *BaseRepository[T]) Collection(ctx context.Context) (*firestore.CollectionRef, error) {
	return r.collectionRef(ctx)
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}
