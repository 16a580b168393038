package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Period is an analytics look-back window.
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"

	DefaultPeriod = Period7d
)

// ParsePeriod validates s. The empty string selects DefaultPeriod.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return DefaultPeriod, nil
	case Period7d, Period30d, Period90d:
		return Period(s), nil
	default:
		return "", Invalid("cart.analytics", "Period must be one of: 7d, 30d, 90d")
	}
}

func (p Period) Duration() time.Duration {
	switch p {
	case Period30d:
		return 30 * 24 * time.Hour
	case Period90d:
		return 90 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

type AnalyticsSummary struct {
	TotalCarts          int     `json:"totalCarts"`
	TotalItems          int     `json:"totalItems"`
	TotalValue          float64 `json:"totalValue"`
	AverageCartValue    float64 `json:"averageCartValue"`
	AverageItemsPerCart float64 `json:"averageItemsPerCart"`
}

type PopularProduct struct {
	ProductID     primitive.ObjectID `json:"productId"`
	ProductName   string             `json:"productName"`
	TotalQuantity int                `json:"totalQuantity"`
	TotalValue    float64            `json:"totalValue"`
	CartCount     int                `json:"cartCount"`
}

type CartAnalytics struct {
	Period          Period           `json:"period"`
	Summary         AnalyticsSummary `json:"summary"`
	PopularProducts []PopularProduct `json:"popularProducts"`
}

// CartOwner is the user detail attached to an abandoned cart.
type CartOwner struct {
	ID    primitive.ObjectID `json:"_id"`
	Name  string             `json:"name"`
	Email string             `json:"email"`
}

// ProductBrief is the product detail attached to abandoned cart lines.
type ProductBrief struct {
	ID         primitive.ObjectID `json:"_id"`
	Name       string             `json:"name"`
	Price      float64            `json:"price"`
	FinalPrice float64            `json:"finalPrice"`
}

type AbandonedItem struct {
	ProductID  primitive.ObjectID `json:"productId"`
	Product    *ProductBrief      `json:"product"`
	Quantity   int                `json:"quantity"`
	Price      float64            `json:"price"`
	Discount   float64            `json:"discount"`
	FinalPrice float64            `json:"finalPrice"`
}

type AbandonedCart struct {
	ID        primitive.ObjectID  `json:"_id"`
	UserID    primitive.ObjectID  `json:"userId"`
	User      *CartOwner          `json:"user"`
	VendorID  *primitive.ObjectID `json:"vendorId,omitempty"`
	Items     []AbandonedItem     `json:"items"`
	CartTotal float64             `json:"cartTotal"`
	ItemCount int                 `json:"itemCount"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}
