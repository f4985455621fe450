package httpx

import (
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	"github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
)

type SelectStoreRequest struct {
	StoreID string `json:"storeId"`
}

type StoreResponse struct {
	StoreID string `json:"storeId"`
}

type AddLineRequest struct {
	ItemID     string          `json:"itemId"`
	Quantity   int             `json:"quantity"`
	Selections []pos.Selection `json:"selections"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type NoteRequest struct {
	Note string `json:"note"`
}

// DiscountRequest sets or, with a null discount, removes the cart discount.
type DiscountRequest struct {
	Discount *pos.Discount `json:"discount"`
}

type TaxRateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type CartResponse struct {
	Lines    []LineResponse  `json:"lines"`
	Discount *pos.Discount   `json:"discount,omitempty"`
	Note     string          `json:"note,omitempty"`
	TaxRate  decimal.Decimal `json:"taxRate"`
	Totals   pos.Totals      `json:"totals"`
}

type LineResponse struct {
	pos.CartLine
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type AddLineResponse struct {
	Line LineResponse `json:"line"`
	Cart CartResponse `json:"cart"`
}

type PreviewRequest struct {
	Method    checkout.PaymentMethod `json:"method"`
	CashGiven *decimal.Decimal       `json:"cashGiven,omitempty"`
}

type CheckoutResponse struct {
	Order     checkout.Order  `json:"order"`
	CashDelta decimal.Decimal `json:"cashDelta"`
	Cart      CartResponse    `json:"cart"`
}

type OpenDrawerRequest struct {
	Float    decimal.Decimal `json:"float"`
	OpenedBy string          `json:"openedBy"`
}

type CashMoveRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	By     string          `json:"by"`
}

type CloseDrawerRequest struct {
	Counted   *decimal.Decimal `json:"counted"`
	CountedBy string           `json:"countedBy"`
}

type TicketStatusRequest struct {
	Status kitchen.Status `json:"status"`
}

type FeedResponse struct {
	Tickets []kitchen.Ticket `json:"tickets"`
}

type BoardResponse struct {
	kitchen.View
	Urgency map[string]kitchen.Urgency `json:"urgency"`
}

type SagaEntryResponse struct {
	sagalog.SagaLog
	Errors []string `json:"errors"`
}

type SagaResponse struct {
	SagaID  string              `json:"sagaId"`
	Entries []SagaEntryResponse `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapCart(c *pos.Cart) CartResponse {
	lines := make([]LineResponse, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = mapLine(l)
	}
	return CartResponse{
		Lines:    lines,
		Discount: c.Discount,
		Note:     c.Note,
		TaxRate:  c.TaxRate,
		Totals:   c.Totals(),
	}
}

func mapLine(l pos.CartLine) LineResponse {
	return LineResponse{CartLine: l, LineTotal: l.LineTotal()}
}
