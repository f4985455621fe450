// Package kitchen tracks kitchen tickets through NEW → IN_PROGRESS → READY →
// SERVED and keeps a local board in step with the authoritative ticket feed.
package kitchen

import (
	"time"

	"github.com/jcmexdev/restaurant-pos/internal/catalog"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReady      Status = "READY"
	StatusServed     Status = "SERVED"
)

// Active reports whether a ticket in this status belongs on the board.
func (s Status) Active() bool {
	return s == StatusNew || s == StatusInProgress || s == StatusReady
}

func (s Status) Valid() bool {
	return s.Active() || s == StatusServed
}

type Channel string

const (
	ChannelDineIn   Channel = "DINE_IN"
	ChannelTakeaway Channel = "TAKEAWAY"
	ChannelDelivery Channel = "DELIVERY"
)

func (c Channel) Valid() bool {
	return c == ChannelDineIn || c == ChannelTakeaway || c == ChannelDelivery
}

// Action is a staff action on a ticket.
type Action string

const (
	ActionStart Action = "start"
	ActionReady Action = "ready"
	ActionServe Action = "serve"
)

var lifecycle = map[Action]struct{ from, to Status }{
	ActionStart: {StatusNew, StatusInProgress},
	ActionReady: {StatusInProgress, StatusReady},
	ActionServe: {StatusReady, StatusServed},
}

// ActionFor returns the action that moves a ticket from one status to the next.
func ActionFor(from, to Status) (Action, bool) {
	for a, step := range lifecycle {
		if step.from == from && step.to == to {
			return a, true
		}
	}
	return "", false
}

type Line struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	Station   catalog.Station `json:"station,omitempty"`
	Modifiers []string        `json:"modifiers,omitempty"`
}

type Ticket struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	StoreID   string    `json:"storeId"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`
	Channel   Channel   `json:"channel"`
	TableNo   string    `json:"tableNo,omitempty"`
	Priority  bool      `json:"priority"`
	Note      string    `json:"note,omitempty"`
	Lines     []Line    `json:"lines"`
}

func (t Ticket) clone() Ticket {
	out := t
	out.Lines = make([]Line, len(t.Lines))
	for i, l := range t.Lines {
		l.Modifiers = append([]string(nil), l.Modifiers...)
		out.Lines[i] = l
	}
	return out
}

// Advance applies action to t. Anything off the linear lifecycle is an
// illegal transition.
func Advance(t Ticket, action Action) (Ticket, error) {
	step, ok := lifecycle[action]
	if !ok {
		return t, apperr.Validation("kitchen.Advance", "unknown action %q", action)
	}
	if t.Status != step.from {
		return t, apperr.IllegalTransition("kitchen.Advance", "ticket %s is %s, %s needs %s", t.Number, t.Status, action, step.from)
	}
	t.Status = step.to
	return t, nil
}

func Start(t Ticket) (Ticket, error)     { return Advance(t, ActionStart) }
func MarkReady(t Ticket) (Ticket, error) { return Advance(t, ActionReady) }
func Serve(t Ticket) (Ticket, error)     { return Advance(t, ActionServe) }

type Urgency string

const (
	UrgencyFresh   Urgency = "fresh"
	UrgencyWarning Urgency = "warning"
	UrgencyLate    Urgency = "late"
)

func (t Ticket) ElapsedMinutes(now time.Time) int {
	if now.Before(t.CreatedAt) {
		return 0
	}
	return int(now.Sub(t.CreatedAt) / time.Minute)
}

// Urgency buckets elapsed time: under 5 minutes fresh, under 10 warning,
// otherwise late.
func (t Ticket) Urgency(now time.Time) Urgency {
	switch m := t.ElapsedMinutes(now); {
	case m < 5:
		return UrgencyFresh
	case m < 10:
		return UrgencyWarning
	default:
		return UrgencyLate
	}
}
