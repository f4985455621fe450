package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/coordinator"
	"github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog"
	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
)

// OrderSubmitter is the external order service. SubmitOrder must return the
// same order id when called again with the same idempotency key.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, idempotencyKey string, order Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// CashRecorder books cash sales on a store's drawer.
type CashRecorder interface {
	RequireOpen(ctx context.Context, storeID string) error
	RecordSale(ctx context.Context, storeID string, amount decimal.Decimal, orderRef string) (drawer.Move, error)
}

// Result is a completed checkout. Cart is the cleared cart now persisted for
// the store.
type Result struct {
	Order     Order
	CashDelta decimal.Decimal
	Cart      *pos.Cart
	Sale      *drawer.Move
}

// Settler runs the side effects of a settlement as one unit: submit the
// order, clear the persisted cart, book the cash sale. If any of them fails
// the others are undone, so retrying means running the whole sequence again
// with the same idempotency key.
type Settler struct {
	orders  OrderSubmitter
	drawer  CashRecorder
	carts   pos.CartStore
	sagaLog sagalog.Repository
	log     *slog.Logger
	now     func() time.Time
}

func NewSettler(orders OrderSubmitter, cash CashRecorder, carts pos.CartStore, sagaLog sagalog.Repository, log *slog.Logger) *Settler {
	if log == nil {
		log = slog.Default()
	}
	return &Settler{
		orders:  orders,
		drawer:  cash,
		carts:   carts,
		sagaLog: sagaLog,
		log:     log.With("component", "checkout"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Checkout settles cart for storeID. cart itself is not modified; on
// success the caller replaces it with Result.Cart.
func (s *Settler) Checkout(ctx context.Context, storeID string, cart *pos.Cart, req Request) (Result, error) {
	settlement, err := Settle(cart, storeID, req, s.now())
	if err != nil {
		s.log.DebugContext(ctx, "settlement rejected", "store_id", storeID, "method", req.Method, "error", err)
		return Result{}, err
	}

	if req.Method == MethodCash {
		if err := s.drawer.RequireOpen(ctx, storeID); err != nil {
			return Result{}, err
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	order := settlement.Order
	before := cart.Clone()
	cleared := cart.Clone()
	cleared.Clear()

	var sale *drawer.Move
	steps := []coordinator.Step{
		coordinator.NewStep("submit_order",
			func(ctx context.Context) error {
				id, err := s.orders.SubmitOrder(ctx, key, order)
				if errors.Is(err, apperr.ErrValidation) {
					return err
				}
				if err != nil {
					return apperr.Persistence("checkout.SubmitOrder", err)
				}
				order.ID = id
				return nil
			},
			func(ctx context.Context) error {
				return s.orders.CancelOrder(ctx, order.ID)
			},
		),
		coordinator.NewStep("clear_cart",
			func(ctx context.Context) error {
				return s.carts.Save(ctx, storeID, cleared)
			},
			func(ctx context.Context) error {
				return s.carts.Save(ctx, storeID, before)
			},
		),
	}
	// A zero total moves no cash.
	if req.Method == MethodCash && settlement.CashDelta.IsPositive() {
		// Last step: nothing runs after it, so it never needs compensating.
		steps = append(steps, coordinator.NewStep("record_sale",
			func(ctx context.Context) error {
				m, err := s.drawer.RecordSale(ctx, storeID, settlement.CashDelta, order.ID)
				if err != nil {
					return err
				}
				sale = &m
				return nil
			},
			nil,
		))
	}

	payload, _ := json.Marshal(map[string]any{
		"storeId": storeID,
		"method":  order.Method,
		"total":   order.Total.StringFixed(2),
		"lines":   len(order.Lines),
	})

	err = coordinator.NewOrchestrator(key, steps, s.sagaLog).
		WithPayload(string(payload)).
		WithLogger(s.log).
		Start(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "checkout failed, nothing applied",
			"store_id", storeID, "idempotency_key", key, "error", err)
		// A drawer closed between the precheck and the sale is stale state,
		// and a rejected order is bad input. Neither is an outage.
		if !coordinator.IsCompensationFailure(err) &&
			(errors.Is(err, apperr.ErrIllegalTransition) || errors.Is(err, apperr.ErrValidation)) {
			return Result{}, err
		}
		return Result{}, apperr.Persistence("checkout.Checkout", err)
	}

	s.log.InfoContext(ctx, "order settled",
		"store_id", storeID,
		"order_id", order.ID,
		"method", order.Method,
		"total", order.Total.StringFixed(2),
	)
	return Result{Order: order, CashDelta: settlement.CashDelta, Cart: cleared, Sale: sale}, nil
}
