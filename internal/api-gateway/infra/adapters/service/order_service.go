package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/core/ports"
	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
)

// Ensure OrderService implements the port at compile time.
var _ ports.OrderService = (*OrderService)(nil)

// OrderService is the in-process order service. Every accepted order opens a
// NEW ticket on the kitchen queue.
type OrderService struct {
	tickets ports.TicketQueue
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	orders map[string]*entity.Order
	byKey  map[string]string
}

func NewOrderService(tickets ports.TicketQueue, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{
		tickets: tickets,
		log:     log.With("component", "orders"),
		now:     func() time.Time { return time.Now().UTC() },
		orders:  make(map[string]*entity.Order),
		byKey:   make(map[string]string),
	}
}

// SubmitOrder stores order and queues its ticket. A key that already placed
// the same order returns that order's id without creating anything; a key
// reused for a different order is rejected.
func (s *OrderService) SubmitOrder(ctx context.Context, idempotencyKey string, order checkout.Order) (string, error) {
	const op = "orders.SubmitOrder"
	if idempotencyKey == "" {
		return "", apperr.Validation(op, "idempotency key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[idempotencyKey]; ok {
		if s.orders[id].Fingerprint() != order.Fingerprint() {
			s.log.WarnContext(ctx, "idempotency key reused for a different order",
				"idempotency_key", idempotencyKey, "order_id", id)
			return "", apperr.Validation(op, "idempotency key %q was already used for a different order", idempotencyKey)
		}
		s.log.InfoContext(ctx, "duplicate order submission", "idempotency_key", idempotencyKey, "order_id", id)
		return id, nil
	}

	order.ID = uuid.NewString()
	ticket, err := s.tickets.Create(ctx, kitchen.NewTicket{
		OrderID:  order.ID,
		StoreID:  order.StoreID,
		Channel:  kitchen.Channel(order.Channel),
		TableNo:  order.TableNo,
		Priority: order.Priority,
		Note:     order.Note,
		Lines:    ticketLines(order.Lines),
	})
	if err != nil {
		return "", err
	}

	now := s.now()
	s.orders[order.ID] = &entity.Order{
		Order:          order.Clone(),
		Status:         entity.OrderPlaced,
		IdempotencyKey: idempotencyKey,
		TicketID:       ticket.ID,
		TicketNumber:   ticket.Number,
		UpdatedAt:      now,
	}
	s.byKey[idempotencyKey] = order.ID

	s.log.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"store_id", order.StoreID,
		"ticket", ticket.Number,
		"total", order.Total.StringFixed(2),
	)
	return order.ID, nil
}

// CancelOrder withdraws an order and its ticket. The idempotency key is
// released so a retry places a fresh order.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status == entity.OrderCancelled {
		return nil
	}
	if err := s.tickets.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	o.Status = entity.OrderCancelled
	o.UpdatedAt = s.now()
	delete(s.byKey, o.IdempotencyKey)

	s.log.WarnContext(ctx, "order cancelled", "order_id", orderID, "ticket", o.TicketNumber)
	return nil
}

func (s *OrderService) GetOrder(_ context.Context, id string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("orders.GetOrder", "order %q", id)
	}
	cp := *o
	cp.Order = o.Order.Clone()
	return &cp, nil
}

func ticketLines(lines []pos.CartLine) []kitchen.Line {
	out := make([]kitchen.Line, len(lines))
	for i, l := range lines {
		mods := make([]string, 0, len(l.Modifiers))
		for _, m := range l.Modifiers {
			mods = append(mods, m.Name)
		}
		out[i] = kitchen.Line{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Qty:       l.Quantity,
			Station:   l.Station,
			Modifiers: mods,
		}
	}
	return out
}
