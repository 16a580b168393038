package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrVersionConflict = errors.New("cart was modified concurrently")
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
)

// CartRepository stores one cart document per user.
type CartRepository interface {
	GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error)
	// SaveCart persists cart if nobody else wrote it since it was loaded.
	// On success cart carries its new version and timestamps. A lost race
	// returns ErrVersionConflict and leaves the stored document untouched.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	FindCarts(ctx context.Context, filter CartFilter) ([]domain.Cart, error)
}

// CatalogRepository reads product and user facts owned by other services.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error)
	ProductIDsByVendor(ctx context.Context, vendorID primitive.ObjectID) ([]primitive.ObjectID, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error)
}

// CartFilter selects carts for read-only scans. Zero fields do not filter.
type CartFilter struct {
	CreatedSince  time.Time
	UpdatedBefore time.Time
	NonEmpty      bool
	// AnyProduct keeps carts holding at least one of these products. A non-nil
	// empty slice matches nothing.
	AnyProduct []primitive.ObjectID
	// NewestFirst sorts by updatedAt descending.
	NewestFirst bool
	Limit       int
}

// Match applies the filter to a single cart. Stores that cannot push the
// filter down to the database use it directly.
func (f CartFilter) Match(c *domain.Cart) bool {
	if !f.CreatedSince.IsZero() && c.CreatedAt.Before(f.CreatedSince) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !c.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	if f.NonEmpty && c.ItemCount <= 0 {
		return false
	}
	if f.AnyProduct != nil {
		set := make(map[primitive.ObjectID]struct{}, len(f.AnyProduct))
		for _, id := range f.AnyProduct {
			set[id] = struct{}{}
		}
		return c.ContainsAny(func(id primitive.ObjectID) bool {
			_, ok := set[id]
			return ok
		})
	}
	return true
}
