// Package checkout turns a cart into an immutable order against a payment
// method and, for cash, reports the amount the drawer must book.
package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
)

type PaymentMethod string

const (
	MethodCash PaymentMethod = "CASH"
	MethodCard PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool { return m == MethodCash || m == MethodCard }

// Request carries the checkout dialog input.
type Request struct {
	Method    PaymentMethod    `json:"method"`
	CashGiven *decimal.Decimal `json:"cashGiven,omitempty"`
	Channel   string           `json:"channel,omitempty"`
	TableNo   string           `json:"tableNo,omitempty"`
	Priority  bool             `json:"priority,omitempty"`
	// IdempotencyKey identifies one checkout attempt across retries.
	IdempotencyKey string `json:"-"`
}

// Order is the settled, immutable record of a sale. Lines are a deep copy
// of the cart at settlement time.
type Order struct {
	ID            string           `json:"id"`
	StoreID       string           `json:"storeId"`
	Lines         []pos.CartLine   `json:"lines"`
	Subtotal      decimal.Decimal  `json:"subtotal"`
	DiscountTotal decimal.Decimal  `json:"discountTotal"`
	Tax           decimal.Decimal  `json:"tax"`
	Total         decimal.Decimal  `json:"total"`
	Method        PaymentMethod    `json:"method"`
	CashGiven     *decimal.Decimal `json:"cashGiven,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	Note          string           `json:"note,omitempty"`
	Channel       string           `json:"channel,omitempty"`
	TableNo       string           `json:"tableNo,omitempty"`
	Priority      bool             `json:"priority,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Order) Clone() Order {
	out := o
	out.Lines = pos.CloneLines(o.Lines)
	if o.CashGiven != nil {
		v := *o.CashGiven
		out.CashGiven = &v
	}
	if o.Change != nil {
		v := *o.Change
		out.Change = &v
	}
	return out
}

// Fingerprint identifies what was sold: store, method, total and the priced
// lines. Ids, timestamps and cash tendered are left out so a retry of the
// same sale matches.
func (o Order) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d\n", o.StoreID, o.Method, o.Total.StringFixed(2), len(o.Lines))
	for _, l := range o.Lines {
		fmt.Fprintf(h, "%s|%d|%s", l.ItemID, l.Quantity, l.UnitPrice.StringFixed(2))
		for _, m := range l.Modifiers {
			fmt.Fprintf(h, "|%s:%s", m.GroupID, m.OptionID)
		}
		fmt.Fprintln(h)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Settlement is the outcome of Settle. CashDelta is +Total for cash and
// zero for card, which never touches the drawer.
type Settlement struct {
	Order     Order
	CashDelta decimal.Decimal
}

// Settle validates the payment against the cart and builds the order. It has
// no side effects: the cart is neither read after return nor modified.
// Order.ID is left empty; the order submitter assigns it.
func Settle(cart *pos.Cart, storeID string, req Request, now time.Time) (Settlement, error) {
	const op = "checkout.Settle"

	if cart == nil || cart.IsEmpty() {
		return Settlement{}, apperr.Validation(op, "cart is empty")
	}
	if storeID == "" {
		return Settlement{}, apperr.Validation(op, "store is required")
	}
	if !req.Method.Valid() {
		return Settlement{}, apperr.Validation(op, "unknown payment method %q", req.Method)
	}

	snapshot := cart.Clone()
	totals := snapshot.Totals()
	if totals.Total.IsNegative() {
		return Settlement{}, apperr.Validation(op, "total %s is negative", totals.Total.StringFixed(2))
	}

	order := Order{
		StoreID:       storeID,
		Lines:         snapshot.Lines,
		Subtotal:      totals.Subtotal,
		DiscountTotal: totals.DiscountTotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
		Method:        req.Method,
		Note:          snapshot.Note,
		Channel:       req.Channel,
		TableNo:       req.TableNo,
		Priority:      req.Priority,
		CreatedAt:     now.UTC(),
	}

	if req.Method == MethodCard {
		return Settlement{Order: order, CashDelta: decimal.Zero}, nil
	}

	if req.CashGiven == nil {
		return Settlement{}, apperr.Validation(op, "cash given is required for cash payments")
	}
	given := *req.CashGiven
	if given.LessThan(totals.Total) {
		return Settlement{}, apperr.InsufficientFunds(op, "cash given %s is less than total %s",
			given.StringFixed(2), totals.Total.StringFixed(2))
	}
	change := given.Sub(totals.Total)
	order.CashGiven = &given
	order.Change = &change

	return Settlement{Order: order, CashDelta: totals.Total}, nil
}

// Preview is what the checkout dialog shows before confirming.
type Preview struct {
	Totals    pos.Totals       `json:"totals"`
	Method    PaymentMethod    `json:"method"`
	Change    *decimal.Decimal `json:"change,omitempty"`
	CanSubmit bool             `json:"canSubmit"`
	Reason    string           `json:"reason,omitempty"`
}

// PreviewSettlement reports whether confirm should be enabled. Card can
// always be submitted for a non-empty cart with a total of at least zero;
// cash only when it covers the total.
func PreviewSettlement(cart *pos.Cart, method PaymentMethod, cashGiven *decimal.Decimal) Preview {
	p := Preview{Method: method}
	if cart == nil || cart.IsEmpty() {
		p.Reason = "cart is empty"
		return p
	}
	p.Totals = cart.Totals()
	if p.Totals.Total.IsNegative() {
		p.Reason = "total is negative"
		return p
	}

	switch method {
	case MethodCard:
		p.CanSubmit = true
	case MethodCash:
		if cashGiven == nil {
			p.Reason = "enter cash given"
			return p
		}
		if cashGiven.LessThan(p.Totals.Total) {
			p.Reason = "cash given is less than total"
			return p
		}
		change := cashGiven.Sub(p.Totals.Total)
		p.Change = &change
		p.CanSubmit = true
	default:
		p.Reason = "choose a payment method"
	}
	return p
}

// CanSettle is PreviewSettlement(...).CanSubmit.
func CanSettle(cart *pos.Cart, method PaymentMethod, cashGiven *decimal.Decimal) bool {
	return PreviewSettlement(cart, method, cashGiven).CanSubmit
}
