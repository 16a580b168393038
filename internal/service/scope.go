package service

import (
	"context"
	"fmt"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductScope is the catalog ownership filter applied to cart reports. The
// zero value allows nothing.
type ProductScope struct {
	all bool
	ids map[primitive.ObjectID]struct{}
}

// AllProducts is the scope of an admin.
func AllProducts() ProductScope {
	return ProductScope{all: true}
}

// OwnedProducts limits a scope to ids.
func OwnedProducts(ids []primitive.ObjectID) ProductScope {
	set := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return ProductScope{ids: set}
}

// ScopeFor derives the scope of principal: admins see every product, vendors
// see the products they own. Any other role is forbidden.
func ScopeFor(ctx context.Context, catalog repository.CatalogRepository, p domain.Principal) (ProductScope, error) {
	const op = "cart.scope"

	switch p.Role {
	case domain.RoleAdmin:
		return AllProducts(), nil
	case domain.RoleVendor:
		ids, err := catalog.ProductIDsByVendor(ctx, p.ID)
		if err != nil {
			return ProductScope{}, domain.Internal(err, op, "failed to list vendor products")
		}
		return OwnedProducts(ids), nil
	default:
		return ProductScope{}, domain.Forbidden(op, fmt.Sprintf("Access denied for role: %s", p.Role))
	}
}

func (s ProductScope) AllowsAll() bool {
	return s.all
}

func (s ProductScope) Allows(id primitive.ObjectID) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// IDs returns the allowed products, or nil when every product is allowed.
// A restricted scope always returns a non-nil slice so that an empty scope
// matches no carts.
func (s ProductScope) IDs() []primitive.ObjectID {
	if s.all {
		return nil
	}
	out := make([]primitive.ObjectID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}
