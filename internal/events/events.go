package events

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

const (
	ItemAdded       EventType = "item_added"
	QuantityUpdated EventType = "quantity_updated"
	ItemRemoved     EventType = "item_removed"
	CartCleared     EventType = "cart_cleared"
)

// CartEvent describes a committed cart mutation.
type CartEvent struct {
	Type      EventType           `json:"type"`
	CartID    primitive.ObjectID  `json:"cartId"`
	UserID    primitive.ObjectID  `json:"userId"`
	ProductID *primitive.ObjectID `json:"productId,omitempty"`
	Quantity  int                 `json:"quantity,omitempty"`
	VendorID  *primitive.ObjectID `json:"vendorId,omitempty"`
	CartTotal float64             `json:"cartTotal"`
	ItemCount int                 `json:"itemCount"`
	Version   int64               `json:"version"`
	At        time.Time           `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event CartEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, CartEvent) error { return nil }

func (Nop) Close() error { return nil }
