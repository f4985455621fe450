package entity

import (
	"time"

	"github.com/jcmexdev/restaurant-pos/internal/checkout"
)

type OrderStatus string

const (
	OrderPlaced    OrderStatus = "PLACED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is a settled checkout as the order service keeps it, together with
// the kitchen ticket it produced.
type Order struct {
	checkout.Order
	Status         OrderStatus `json:"status"`
	IdempotencyKey string      `json:"idempotencyKey"`
	TicketID       string      `json:"ticketId,omitempty"`
	TicketNumber   string      `json:"ticketNumber,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
