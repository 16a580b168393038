package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cart is the per-user cart document. CartTotal, ItemCount and every item's
// FinalPrice are derived by Recalculate and must not be set anywhere else.
type Cart struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"_id,omitempty"`
	UserID    primitive.ObjectID  `bson:"userId" json:"userId"`
	VendorID  *primitive.ObjectID `bson:"vendorId,omitempty" json:"vendorId,omitempty"`
	Items     []CartItem          `bson:"items" json:"items"`
	CartTotal float64             `bson:"cartTotal" json:"cartTotal"`
	ItemCount int                 `bson:"itemCount" json:"itemCount"`
	Version   int64               `bson:"version" json:"version"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// CartItem is a line of a cart. Price and Discount are snapshots taken when
// the line was last added or updated.
type CartItem struct {
	ProductID  primitive.ObjectID `bson:"productId" json:"productId"`
	Quantity   int                `bson:"quantity" json:"quantity"`
	Price      float64            `bson:"price" json:"price"`
	Discount   float64            `bson:"discount" json:"discount"`
	FinalPrice float64            `bson:"finalPrice" json:"finalPrice"`
}

// NewCart returns an empty, unsaved cart for userID.
func NewCart(userID primitive.ObjectID) *Cart {
	return &Cart{UserID: userID, Items: []CartItem{}}
}

// NewCartItem snapshots the current price and discount of p.
func NewCartItem(p *Product, quantity int) CartItem {
	item := CartItem{ProductID: p.ID, Quantity: quantity}
	item.Snapshot(p)
	return item
}

// Snapshot refreshes the price and discount captured from p.
func (i *CartItem) Snapshot(p *Product) {
	i.Price = p.Price
	i.Discount = clampPercent(p.Discount)
	i.FinalPrice = LineFinalPrice(i.Price, i.Discount)
}

// FindItem returns the index of the line for productID, or -1.
func (c *Cart) FindItem(productID primitive.ObjectID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// RemoveProduct drops the line for productID. It reports whether a line was removed.
func (c *Cart) RemoveProduct(productID primitive.ObjectID) bool {
	kept := c.Items[:0]
	removed := false
	for _, item := range c.Items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
	return removed
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.VendorID = nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ContainsAny reports whether at least one line passes allow.
func (c *Cart) ContainsAny(allow func(primitive.ObjectID) bool) bool {
	for _, item := range c.Items {
		if allow(item.ProductID) {
			return true
		}
	}
	return false
}

// Recalculate recomputes every derived field from Items. An empty cart loses
// its vendor.
func (c *Cart) Recalculate() {
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	var t total
	count := 0
	for i := range c.Items {
		item := &c.Items[i]
		item.FinalPrice = LineFinalPrice(item.Price, item.Discount)
		t.add(item.FinalPrice, item.Quantity)
		count += item.Quantity
	}
	c.CartTotal = t.value()
	c.ItemCount = count
	if len(c.Items) == 0 {
		c.VendorID = nil
	}
}

// Clone returns a deep copy of c.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = append([]CartItem(nil), c.Items...)
	if out.Items == nil {
		out.Items = []CartItem{}
	}
	if c.VendorID != nil {
		v := *c.VendorID
		out.VendorID = &v
	}
	return &out
}

// ProductIDs lists the product of every line in cart order.
func (c *Cart) ProductIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}
