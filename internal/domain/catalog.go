package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a token claim to a Role. Unknown or empty values are customers.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleVendor, RoleAdmin:
		return Role(s)
	default:
		return RoleCustomer
	}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ID   primitive.ObjectID `json:"_id"`
	Role Role               `json:"role"`
}

type ProductImage struct {
	URL string `bson:"url" json:"url"`
	Alt string `bson:"alt,omitempty" json:"alt,omitempty"`
}

// Product is a catalog fact owned by the catalog service. The cart only reads it.
type Product struct {
	ID          primitive.ObjectID `bson:"_id" json:"_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Images      []ProductImage     `bson:"images,omitempty" json:"images"`
	Price       float64            `bson:"price" json:"price"`
	Discount    float64            `bson:"discount" json:"discount"`
	FinalPrice  float64            `bson:"finalPrice" json:"finalPrice"`
	VendorID    primitive.ObjectID `bson:"vendorId" json:"vendorId"`
	StockQty    int                `bson:"stockQty" json:"stockQty"`
	IsAvailable bool               `bson:"isAvailable" json:"isAvailable"`
	IsDeleted   bool               `bson:"isDeleted" json:"-"`
}

// Resolvable reports whether the product can still be referenced by a cart.
func (p *Product) Resolvable() bool {
	return p != nil && !p.IsDeleted
}

// HasStock reports whether quantity units are in stock right now.
func (p *Product) HasStock(quantity int) bool {
	return p.StockQty >= quantity
}

// User is an identity fact owned by the auth service.
type User struct {
	ID    primitive.ObjectID `bson:"_id" json:"_id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
	Role  Role               `bson:"role,omitempty" json:"role,omitempty"`
}
