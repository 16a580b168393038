package cache

import (
	"context"
	"errors"

	"github.com/fjod/grocery-cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartCache holds read copies of cart documents. It is never consulted on the
// write path.
type CartCache interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error)
	// Set stores cart unless an invalidation for a newer version has been seen.
	Set(ctx context.Context, userID primitive.ObjectID, cart *domain.Cart) error
	// Delete drops the cached cart after version was committed. Later fills
	// carrying an older version are ignored.
	Delete(ctx context.Context, userID primitive.ObjectID, version int64) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never stores anything. Every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context, primitive.ObjectID) (*domain.Cart, error) {
	return nil, ErrCacheMiss
}

func (Nop) Set(context.Context, primitive.ObjectID, *domain.Cart) error { return nil }

func (Nop) Delete(context.Context, primitive.ObjectID, int64) error { return nil }
