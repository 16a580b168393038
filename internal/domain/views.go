package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartProduct is the product detail shown next to a cart line.
type CartProduct struct {
	ID          primitive.ObjectID `json:"_id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Price       float64            `json:"price"`
	FinalPrice  float64            `json:"finalPrice"`
	Images      []ProductImage     `json:"images"`
	StockQty    int                `json:"stockQty"`
	IsAvailable bool               `json:"isAvailable"`
}

// CartItemView is a cart line with its product populated. Product is nil when
// the product no longer exists in the catalog.
type CartItemView struct {
	ProductID  primitive.ObjectID `json:"productId"`
	Product    *CartProduct       `json:"product"`
	Quantity   int                `json:"quantity"`
	Price      float64            `json:"price"`
	Discount   float64            `json:"discount"`
	FinalPrice float64            `json:"finalPrice"`
}

// CartView is the full cart returned to its owner.
type CartView struct {
	ID        *primitive.ObjectID `json:"_id,omitempty"`
	UserID    primitive.ObjectID  `json:"userId"`
	VendorID  *primitive.ObjectID `json:"vendorId,omitempty"`
	Items     []CartItemView      `json:"items"`
	CartTotal float64             `json:"cartTotal"`
	ItemCount int                 `json:"itemCount"`
	CreatedAt *time.Time          `json:"createdAt,omitempty"`
	UpdatedAt *time.Time          `json:"updatedAt,omitempty"`
}

// EmptyCartView is what a user without a stored cart sees.
func EmptyCartView(userID primitive.ObjectID) *CartView {
	return &CartView{UserID: userID, Items: []CartItemView{}}
}

// NewCartView joins cart lines with catalog products keyed by id.
func NewCartView(c *Cart, products map[primitive.ObjectID]*Product) *CartView {
	id := c.ID
	created, updated := c.CreatedAt, c.UpdatedAt
	view := &CartView{
		ID:        &id,
		UserID:    c.UserID,
		VendorID:  c.VendorID,
		Items:     make([]CartItemView, 0, len(c.Items)),
		CartTotal: c.CartTotal,
		ItemCount: c.ItemCount,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
	for _, item := range c.Items {
		line := CartItemView{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Price:      item.Price,
			Discount:   item.Discount,
			FinalPrice: item.FinalPrice,
		}
		if p, ok := products[item.ProductID]; ok {
			line.Product = &CartProduct{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
				FinalPrice:  p.FinalPrice,
				Images:      p.Images,
				StockQty:    p.StockQty,
				IsAvailable: p.IsAvailable,
			}
		}
		view.Items = append(view.Items, line)
	}
	return view
}

// CartSummary is the lightweight cart badge.
type CartSummary struct {
	ItemCount int                 `json:"itemCount"`
	CartTotal float64             `json:"cartTotal"`
	HasItems  bool                `json:"hasItems"`
	VendorID  *primitive.ObjectID `json:"vendorId,omitempty"`
}

// NewCartSummary summarizes c. A nil cart yields the zero summary.
func NewCartSummary(c *Cart) *CartSummary {
	if c == nil {
		return &CartSummary{}
	}
	return &CartSummary{
		ItemCount: c.ItemCount,
		CartTotal: c.CartTotal,
		HasItems:  len(c.Items) > 0,
		VendorID:  c.VendorID,
	}
}
