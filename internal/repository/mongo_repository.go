package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return newMongoRepository(db)
}

func newMongoRepository(db *mongo.Database) *mongoRepository {
	return &mongoRepository{
		collection: db.Collection(cartsCollection),
		now:        time.Now,
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	return &cart, nil
}

func (m *mongoRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	// Mongo keeps millisecond precision; truncate so the caller's copy matches
	// what a later read returns.
	now := m.now().UTC().Truncate(time.Millisecond)

	next := cart.Clone()
	next.UpdatedAt = now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.Version = cart.Version + 1

	if cart.ID.IsZero() {
		next.ID = primitive.NewObjectID()
		if _, err := m.collection.InsertOne(ctx, next); err != nil {
			// The unique userId index turns a concurrent first add into a
			// conflict instead of a second cart.
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert cart: %w", err)
		}
		*cart = *next
		return nil
	}

	filter := bson.M{"_id": cart.ID, "version": cart.Version}
	if cart.Version == 0 {
		// Documents written before versioning have no version field.
		filter = bson.M{
			"_id": cart.ID,
			"$or": bson.A{
				bson.M{"version": 0},
				bson.M{"version": bson.M{"$exists": false}},
			},
		}
	}

	result, err := m.collection.ReplaceOne(ctx, filter, next)
	if err != nil {
		return fmt.Errorf("failed to replace cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	*cart = *next
	return nil
}

func (m *mongoRepository) FindCarts(ctx context.Context, f CartFilter) ([]domain.Cart, error) {
	if f.AnyProduct != nil && len(f.AnyProduct) == 0 {
		return []domain.Cart{}, nil
	}

	filter := bson.M{}
	if !f.CreatedSince.IsZero() {
		filter["createdAt"] = bson.M{"$gte": f.CreatedSince}
	}
	if !f.UpdatedBefore.IsZero() {
		filter["updatedAt"] = bson.M{"$lt": f.UpdatedBefore}
	}
	if f.NonEmpty {
		filter["itemCount"] = bson.M{"$gt": 0}
	}
	if f.AnyProduct != nil {
		filter["items.productId"] = bson.M{"$in": f.AnyProduct}
	}

	opts := options.Find()
	if f.NewestFirst {
		opts.SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	}
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find carts: %w", err)
	}
	defer cursor.Close(ctx)

	carts := []domain.Cart{}
	if err := cursor.All(ctx, &carts); err != nil {
		return nil, fmt.Errorf("failed to decode carts: %w", err)
	}
	return carts, nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// abandonment scans
			Keys: bson.D{{Key: "updatedAt", Value: -1}, {Key: "itemCount", Value: 1}},
		},
		{
			// analytics windows
			Keys: bson.D{{Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "items.productId", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
