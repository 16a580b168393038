package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/grocery-cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type catalogRepository struct {
	products *mongo.Collection
	users    *mongo.Collection
}

// NewCatalogRepository reads the product and user collections written by the
// catalog and auth services.
func NewCatalogRepository(db *mongo.Database) CatalogRepository {
	return &catalogRepository{
		products: db.Collection(productsCollection),
		users:    db.Collection(usersCollection),
	}
}

func (r *catalogRepository) GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	var p domain.Product
	err := r.products.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetProducts returns the products found among ids. Missing ids are absent
// from the map.
func (r *catalogRepository) GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	out := make(map[primitive.ObjectID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := r.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var p domain.Product
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		out[p.ID] = &p
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return out, nil
}

// ProductIDsByVendor includes soft-deleted products; carts may still hold them.
func (r *catalogRepository) ProductIDsByVendor(ctx context.Context, vendorID primitive.ObjectID) ([]primitive.ObjectID, error) {
	filter := bson.M{"vendorId": vendorID}
	opts := options.Find().SetProjection(bson.M{"_id": 1})

	cursor, err := r.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find vendor products: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode vendor products: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *catalogRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var u domain.User
	opts := options.FindOne().SetProjection(userProjection)
	err := r.users.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *catalogRepository) GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error) {
	out := make(map[primitive.ObjectID]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(userProjection)
	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []domain.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// password hashes and tokens never leave the users collection
var userProjection = bson.M{"name": 1, "email": 1, "role": 1}
