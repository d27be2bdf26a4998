package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the catalog read model. The catalog service owns these
// documents; checkout only ever reads them.
type Product struct {
	ID          primitive.ObjectID `bson:"_id" json:"_id"`
	Name        string             `bson:"name" json:"name"`
	Slug        string             `bson:"slug" json:"slug"`
	Description string             `bson:"description" json:"description"`
	Price       float64            `bson:"price" json:"price"`
	Category    primitive.ObjectID `bson:"category" json:"category"`
	Quantity    int                `bson:"quantity" json:"quantity"`
	Shipping    bool               `bson:"shipping" json:"shipping"`
}

// CartLine is one client-held cart entry. Quantity defaults to 1 when the
// client omits it.
type CartLine struct {
	ProductID primitive.ObjectID `json:"_id" binding:"required"`
	Quantity  int                `json:"quantity"`
}

type OrderStatus string

const (
	StatusNotProcessed OrderStatus = "Not Processed"
	StatusProcessing   OrderStatus = "Processing"
	StatusShipped      OrderStatus = "Shipped"
	StatusDelivered    OrderStatus = "Delivered"
	StatusCancelled    OrderStatus = "Cancelled"
)

// Valid reports whether s is one of the enumerated order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNotProcessed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentRecord captures the gateway outcome stored with an order. Orders
// only exist for successful charges, so Success is always true on a
// persisted order.
type PaymentRecord struct {
	Success       bool   `bson:"success" json:"success"`
	TransactionID string `bson:"transaction_id" json:"transaction_id"`
	AmountCents   int64  `bson:"amount_cents" json:"amount_cents"`
	Currency      string `bson:"currency" json:"currency"`
	GatewayStatus string `bson:"gateway_status,omitempty" json:"gateway_status,omitempty"`
}

type Order struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Products  []primitive.ObjectID `bson:"products" json:"products"`
	Payment   PaymentRecord        `bson:"payment" json:"payment"`
	Buyer     primitive.ObjectID   `bson:"buyer" json:"buyer"`
	Status    OrderStatus          `bson:"status" json:"status"`
	CreatedAt time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// OrderBuyer is the denormalized buyer projection on listings: name only.
type OrderBuyer struct {
	ID   primitive.ObjectID `bson:"_id" json:"_id"`
	Name string             `bson:"name" json:"name"`
}

// PopulatedOrder is an order with its product and buyer references resolved
// for listing responses. Product photos are excluded from the projection.
type PopulatedOrder struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Products  []Product          `bson:"products" json:"products"`
	Payment   PaymentRecord      `bson:"payment" json:"payment"`
	Buyer     OrderBuyer         `bson:"buyer" json:"buyer"`
	Status    OrderStatus        `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ReconciliationRecord is the durable audit entry written when a charge was
// captured at the gateway but the order insert failed. Operators replay
// these manually.
type ReconciliationRecord struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	TransactionID string               `bson:"transaction_id" json:"transaction_id"`
	Buyer         primitive.ObjectID   `bson:"buyer" json:"buyer"`
	Products      []primitive.ObjectID `bson:"products" json:"products"`
	AmountCents   int64                `bson:"amount_cents" json:"amount_cents"`
	Reason        string               `bson:"reason" json:"reason"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
}
