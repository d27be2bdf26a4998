package models

import "time"

// OrderPlacedEvent is published to Kafka after an order is durably recorded.
type OrderPlacedEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	BuyerID       string    `json:"buyer_id"`
	TransactionID string    `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
	Products      []string  `json:"products"`
	Timestamp     time.Time `json:"timestamp"`
}
