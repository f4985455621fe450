package pos

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// MergePolicy decides what AddLine does with a line identical to one
// already in the cart (same item, same modifiers, same unit price).
type MergePolicy int

const (
	// MergeIdentical folds the new quantity into the existing line.
	MergeIdentical MergePolicy = iota
	// KeepDistinct always appends a new line.
	KeepDistinct
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
)

type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Totals is the breakdown shown in the cart panel and at checkout.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// Cart is an ordered list of priced lines. Insertion order is display order.
// A Cart is not safe for concurrent use; terminal.Terminal serialises access.
type Cart struct {
	Lines    []CartLine      `json:"lines"`
	Discount *Discount       `json:"discount,omitempty"`
	Note     string          `json:"note,omitempty"`
	TaxRate  decimal.Decimal `json:"taxRate"`
}

func NewCart() *Cart {
	return &Cart{Lines: []CartLine{}}
}

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

// Line returns a copy of the line with the given id.
func (c *Cart) Line(lineID string) (CartLine, bool) {
	if i := c.index(lineID); i >= 0 {
		return c.Lines[i].clone(), true
	}
	return CartLine{}, false
}

// AddLine appends line, or merges it into an identical line when policy is
// MergeIdentical. It returns the id of the line that holds the quantity.
func (c *Cart) AddLine(line CartLine, policy MergePolicy) (string, error) {
	const op = "pos.AddLine"
	if line.ID == "" {
		return "", apperr.Validation(op, "line has no id")
	}
	if line.Quantity < 1 {
		return "", apperr.Validation(op, "quantity must be at least 1, got %d", line.Quantity)
	}
	if c.index(line.ID) >= 0 {
		return "", apperr.Validation(op, "line %q already in cart", line.ID)
	}

	if policy == MergeIdentical {
		key := mergeKey(line)
		for i := range c.Lines {
			if mergeKey(c.Lines[i]) == key {
				c.Lines[i].Quantity += line.Quantity
				return c.Lines[i].ID, nil
			}
		}
	}

	c.Lines = append(c.Lines, line.clone())
	return line.ID, nil
}

// SetQuantity sets a line's quantity. qty <= 0 removes the line.
func (c *Cart) SetQuantity(lineID string, qty int) error {
	if qty <= 0 {
		return c.RemoveLine(lineID)
	}
	i := c.index(lineID)
	if i < 0 {
		return apperr.NotFound("pos.SetQuantity", "line %q", lineID)
	}
	c.Lines[i].Quantity = qty
	return nil
}

func (c *Cart) RemoveLine(lineID string) error {
	i := c.index(lineID)
	if i < 0 {
		return apperr.NotFound("pos.RemoveLine", "line %q", lineID)
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return nil
}

// Clear empties the cart, including discount and note. The tax rate is a
// store setting and survives.
func (c *Cart) Clear() {
	c.Lines = []CartLine{}
	c.Discount = nil
	c.Note = ""
}

// SetDiscount replaces the discount; nil removes it.
func (c *Cart) SetDiscount(d *Discount) error {
	const op = "pos.SetDiscount"
	if d == nil {
		c.Discount = nil
		return nil
	}
	if d.Value.IsNegative() {
		return apperr.Validation(op, "discount must not be negative")
	}
	switch d.Type {
	case DiscountPercent:
		if d.Value.GreaterThan(hundred) {
			return apperr.Validation(op, "percent discount above 100")
		}
	case DiscountAmount:
	default:
		return apperr.Validation(op, "unknown discount type %q", d.Type)
	}
	cp := *d
	c.Discount = &cp
	return nil
}

func (c *Cart) SetNote(note string) { c.Note = strings.TrimSpace(note) }

func (c *Cart) SetTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return apperr.Validation("pos.SetTaxRate", "tax rate must be within [0, 1], got %s", rate)
	}
	c.TaxRate = rate
	return nil
}

// Subtotal is Σ(unitPrice × quantity), recomputed on every call.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// Totals derives the discount, tax and payable total from the current lines.
// Discount is capped at the subtotal; discount and tax are rounded to cents.
func (c *Cart) Totals() Totals {
	subtotal := c.Subtotal()

	discount := decimal.Zero
	if c.Discount != nil {
		switch c.Discount.Type {
		case DiscountPercent:
			discount = subtotal.Mul(c.Discount.Value).Div(hundred)
		case DiscountAmount:
			discount = c.Discount.Value
		}
		discount = discount.Round(2)
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
	}

	base := subtotal.Sub(discount)
	tax := base.Mul(c.TaxRate).Round(2)

	return Totals{
		Subtotal:      subtotal,
		DiscountTotal: discount,
		Tax:           tax,
		Total:         base.Add(tax),
	}
}

// Total is the amount payable. With no discount and no tax it equals Subtotal.
func (c *Cart) Total() decimal.Decimal {
	return c.Totals().Total
}

// Clone returns a deep copy; settled orders and rollback snapshots use it.
func (c *Cart) Clone() *Cart {
	out := &Cart{
		Lines:   make([]CartLine, len(c.Lines)),
		Note:    c.Note,
		TaxRate: c.TaxRate,
	}
	for i, l := range c.Lines {
		out.Lines[i] = l.clone()
	}
	if c.Discount != nil {
		d := *c.Discount
		out.Discount = &d
	}
	return out
}

func (c *Cart) index(lineID string) int {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func mergeKey(l CartLine) string {
	opts := make([]string, len(l.Modifiers))
	for i, m := range l.Modifiers {
		opts[i] = m.GroupID + "/" + m.OptionID
	}
	sort.Strings(opts)
	return l.ItemID + "|" + strings.Join(opts, ",") + "|" + l.UnitPrice.String()
}
