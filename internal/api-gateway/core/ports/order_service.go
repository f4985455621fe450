package ports

import (
	"context"

	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
)

// OrderService accepts settled orders and answers lookups for them.
type OrderService interface {
	checkout.OrderSubmitter
	GetOrder(ctx context.Context, id string) (*entity.Order, error)
}

// TicketQueue is where accepted orders become kitchen tickets.
type TicketQueue interface {
	Create(ctx context.Context, in kitchen.NewTicket) (kitchen.Ticket, error)
	CancelOrder(ctx context.Context, orderID string) error
}
