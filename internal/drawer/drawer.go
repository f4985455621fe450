// Package drawer implements the per-store cash drawer session.
//
// A drawer is CLOSED until opened with a float, accepts cash movements while
// OPEN, and is reconciled against a physical count on close. Every operation
// is first computed as a Transition without touching the drawer, so the value
// that gets persisted is exactly the value that gets applied:
//
//	t, err := d.CashIn(amount, "change from bank", "ana")
//	if err != nil { ... }
//	d.Apply(t)
//	repo.ApplyTransition(ctx, t)
package drawer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

type Status string

const (
	StatusClosed Status = "CLOSED"
	StatusOpen   Status = "OPEN"
)

type MoveType string

const (
	MoveSale       MoveType = "SALE"
	MoveCashIn     MoveType = "CASH_IN"
	MoveCashOut    MoveType = "CASH_OUT"
	MoveAdjustment MoveType = "ADJUSTMENT"
)

// Action names the operation that produced a Transition.
type Action string

const (
	ActionOpen    Action = "OPEN"
	ActionCashIn  Action = "CASH_IN"
	ActionCashOut Action = "CASH_OUT"
	ActionSale    Action = "SALE"
	ActionClose   Action = "CLOSE"
)

// Move is one append-only ledger entry. Amount is signed: CASH_OUT is
// negative, ADJUSTMENT carries the sign of the count difference.
type Move struct {
	ID        string          `json:"id"`
	StoreID   string          `json:"storeId"`
	SessionID string          `json:"sessionId"`
	Seq       int             `json:"seq"`
	At        time.Time       `json:"ts"`
	Type      MoveType        `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	OrderRef  string          `json:"orderId,omitempty"`
	By        string          `json:"by,omitempty"`
}

// State is the cached head of a store's drawer. FloatAmount, OpenedAt and
// OpenedBy are only meaningful while OPEN. Version increments on every
// persisted transition.
type State struct {
	StoreID     string          `json:"storeId"`
	SessionID   string          `json:"sessionId,omitempty"`
	Status      Status          `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
	FloatAmount decimal.Decimal `json:"floatAmount"`
	OpenedAt    *time.Time      `json:"openedAt,omitempty"`
	OpenedBy    string          `json:"openedBy,omitempty"`
	Version     int64           `json:"version"`
}

// CloseReport is the reconciliation produced by Close.
type CloseReport struct {
	SessionID  string          `json:"sessionId"`
	Expected   decimal.Decimal `json:"expected"`
	Counted    decimal.Decimal `json:"counted"`
	Difference decimal.Decimal `json:"difference"`
	Adjustment *Move           `json:"adjustment,omitempty"`
	CountedBy  string          `json:"countedBy,omitempty"`
	ClosedAt   time.Time       `json:"closedAt"`
}

// Transition is a computed, not yet applied, drawer operation.
type Transition struct {
	Action Action
	At     time.Time
	Before State
	After  State
	Moves  []Move
	Report *CloseReport
}

// InvalidFloatError is returned by Open for a negative float.
type InvalidFloatError struct {
	Amount decimal.Decimal
}

func (e *InvalidFloatError) Error() string {
	return fmt.Sprintf("invalid float %s: must be zero or positive", e.Amount)
}

func (e *InvalidFloatError) Unwrap() error { return apperr.ErrValidation }

// Drawer is the state machine for one store. It is not safe for concurrent
// use; Service serialises access.
type Drawer struct {
	state State
	moves []Move

	now   func() time.Time
	newID func() string
}

// New returns a CLOSED drawer for storeID with an empty ledger.
func New(storeID string) *Drawer {
	return Restore(State{StoreID: storeID, Status: StatusClosed}, nil)
}

// Restore rebuilds a drawer from persisted state and the current session's moves.
func Restore(state State, moves []Move) *Drawer {
	if state.Status == "" {
		state.Status = StatusClosed
	}
	return &Drawer{
		state: state,
		moves: append([]Move(nil), moves...),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (d *Drawer) State() State {
	s := d.state
	if s.OpenedAt != nil {
		t := *s.OpenedAt
		s.OpenedAt = &t
	}
	return s
}

// Moves returns the current session's ledger in sequence order.
func (d *Drawer) Moves() []Move {
	return append([]Move(nil), d.moves...)
}

func (d *Drawer) Open(floatAmount decimal.Decimal, openedBy string) (Transition, error) {
	const op = "drawer.Open"
	if d.state.Status != StatusClosed {
		return Transition{}, apperr.IllegalTransition(op, "drawer for store %q is already open", d.state.StoreID)
	}
	if floatAmount.IsNegative() {
		return Transition{}, &InvalidFloatError{Amount: floatAmount}
	}
	if strings.TrimSpace(openedBy) == "" {
		return Transition{}, apperr.Validation(op, "openedBy is required")
	}

	at := d.now()
	after := State{
		StoreID:     d.state.StoreID,
		SessionID:   d.newID(),
		Status:      StatusOpen,
		Balance:     floatAmount,
		FloatAmount: floatAmount,
		OpenedAt:    &at,
		OpenedBy:    openedBy,
		Version:     d.state.Version + 1,
	}
	return Transition{Action: ActionOpen, At: at, Before: d.State(), After: after}, nil
}

func (d *Drawer) CashIn(amount decimal.Decimal, reason, by string) (Transition, error) {
	return d.manualMove("drawer.CashIn", ActionCashIn, MoveCashIn, amount, reason, by)
}

func (d *Drawer) CashOut(amount decimal.Decimal, reason, by string) (Transition, error) {
	return d.manualMove("drawer.CashOut", ActionCashOut, MoveCashOut, amount, reason, by)
}

func (d *Drawer) manualMove(op string, action Action, typ MoveType, amount decimal.Decimal, reason, by string) (Transition, error) {
	if err := d.requireOpen(op); err != nil {
		return Transition{}, err
	}
	if !amount.IsPositive() {
		return Transition{}, apperr.Validation(op, "amount must be greater than zero")
	}
	if strings.TrimSpace(reason) == "" {
		return Transition{}, apperr.Validation(op, "reason is required")
	}

	signed := amount
	if typ == MoveCashOut {
		if amount.GreaterThan(d.state.Balance) {
			return Transition{}, apperr.Validation(op, "cash out %s exceeds drawer balance %s", amount, d.state.Balance)
		}
		signed = amount.Neg()
	}

	at := d.now()
	m := d.move(at, typ, signed, 1)
	m.Reason = strings.TrimSpace(reason)
	m.By = by
	return d.withMoves(action, at, m), nil
}

// RecordSale books the cash of a settled order. It is driven by checkout,
// never by a user action.
func (d *Drawer) RecordSale(amount decimal.Decimal, orderRef string) (Transition, error) {
	const op = "drawer.RecordSale"
	if err := d.requireOpen(op); err != nil {
		return Transition{}, err
	}
	if !amount.IsPositive() {
		return Transition{}, apperr.Validation(op, "sale amount must be greater than zero")
	}
	if orderRef == "" {
		return Transition{}, apperr.Validation(op, "order reference is required")
	}

	at := d.now()
	m := d.move(at, MoveSale, amount, 1)
	m.OrderRef = orderRef
	return d.withMoves(ActionSale, at, m), nil
}

// Close reconciles the drawer against counted. When counted differs from
// the balance an ADJUSTMENT of counted-balance is appended first, so the
// final balance always equals the physical count.
func (d *Drawer) Close(counted *decimal.Decimal, countedBy string) (Transition, error) {
	const op = "drawer.Close"
	if err := d.requireOpen(op); err != nil {
		return Transition{}, err
	}
	if counted == nil {
		return Transition{}, apperr.Validation(op, "counted total is required")
	}
	if counted.IsNegative() {
		return Transition{}, apperr.Validation(op, "counted total must not be negative")
	}

	at := d.now()
	diff := counted.Sub(d.state.Balance)
	report := &CloseReport{
		SessionID:  d.state.SessionID,
		Expected:   d.state.Balance,
		Counted:    *counted,
		Difference: diff,
		CountedBy:  countedBy,
		ClosedAt:   at,
	}

	var moves []Move
	if !diff.IsZero() {
		adj := d.move(at, MoveAdjustment, diff, 1)
		adj.Reason = "close count difference"
		adj.By = countedBy
		moves = append(moves, adj)
		report.Adjustment = &adj
	}

	after := State{
		StoreID:   d.state.StoreID,
		SessionID: d.state.SessionID,
		Status:    StatusClosed,
		Balance:   *counted,
		Version:   d.state.Version + 1,
	}
	return Transition{Action: ActionClose, At: at, Before: d.State(), After: after, Moves: moves, Report: report}, nil
}

// Apply commits a transition computed by this drawer. Opening a session
// starts an empty ledger.
func (d *Drawer) Apply(t Transition) {
	if t.Action == ActionOpen {
		d.moves = nil
	}
	d.moves = append(d.moves, t.Moves...)
	d.state = t.After
}

// Verify checks balance == float + Σ moves for an OPEN session.
func (d *Drawer) Verify() error {
	if d.state.Status != StatusOpen {
		return nil
	}
	sum := d.state.FloatAmount
	for _, m := range d.moves {
		sum = sum.Add(m.Amount)
	}
	if !sum.Equal(d.state.Balance) {
		return fmt.Errorf("drawer %s: balance %s does not match float plus moves %s", d.state.StoreID, d.state.Balance, sum)
	}
	return nil
}

func (d *Drawer) requireOpen(op string) error {
	if d.state.Status != StatusOpen {
		return apperr.IllegalTransition(op, "drawer for store %q is closed", d.state.StoreID)
	}
	return nil
}

// move builds the offset-th move after the current ledger tail.
func (d *Drawer) move(at time.Time, typ MoveType, amount decimal.Decimal, offset int) Move {
	return Move{
		ID:        d.newID(),
		StoreID:   d.state.StoreID,
		SessionID: d.state.SessionID,
		Seq:       len(d.moves) + offset,
		At:        at,
		Type:      typ,
		Amount:    amount,
	}
}

func (d *Drawer) withMoves(action Action, at time.Time, moves ...Move) Transition {
	after := d.State()
	for _, m := range moves {
		after.Balance = after.Balance.Add(m.Amount)
	}
	after.Version++
	return Transition{Action: action, At: at, Before: d.State(), After: after, Moves: moves}
}
