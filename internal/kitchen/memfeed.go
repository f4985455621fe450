package kitchen

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

const firstTicketNumber = 1001

// NewTicket is what order submission hands to the feed.
type NewTicket struct {
	OrderID  string
	StoreID  string
	Channel  Channel
	TableNo  string
	Priority bool
	Note     string
	Lines    []Line
}

// MemoryFeed is the server side of the ticket feed: it creates tickets from
// submitted orders, numbers them per store and enforces the lifecycle on
// status updates.
type MemoryFeed struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
	byOrder map[string]string
	next    map[string]int
	now     func() time.Time
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		tickets: make(map[string]*Ticket),
		byOrder: make(map[string]string),
		next:    make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a NEW ticket for an order. Creating twice for the same order
// returns the existing ticket.
func (f *MemoryFeed) Create(_ context.Context, in NewTicket) (Ticket, error) {
	const op = "kitchen.Create"
	if in.OrderID == "" || in.StoreID == "" {
		return Ticket{}, apperr.Validation(op, "order and store are required")
	}
	if len(in.Lines) == 0 {
		return Ticket{}, apperr.Validation(op, "ticket needs at least one line")
	}
	if in.Channel == "" {
		in.Channel = ChannelDineIn
	}
	if !in.Channel.Valid() {
		return Ticket{}, apperr.Validation(op, "unknown channel %q", in.Channel)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.byOrder[in.OrderID]; ok {
		return f.tickets[id].clone(), nil
	}

	n, ok := f.next[in.StoreID]
	if !ok {
		n = firstTicketNumber
	}
	f.next[in.StoreID] = n + 1

	t := &Ticket{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		StoreID:   in.StoreID,
		Number:    fmt.Sprintf("#%d", n),
		CreatedAt: f.now(),
		Status:    StatusNew,
		Channel:   in.Channel,
		TableNo:   in.TableNo,
		Priority:  in.Priority,
		Note:      in.Note,
		Lines:     in.Lines,
	}
	*t = t.clone()
	f.tickets[t.ID] = t
	f.byOrder[in.OrderID] = t.ID
	return t.clone(), nil
}

// CancelOrder withdraws the ticket of an order that was rolled back.
// Unknown orders are ignored.
func (f *MemoryFeed) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byOrder[orderID]
	if !ok {
		return nil
	}
	delete(f.byOrder, orderID)
	delete(f.tickets, id)
	return nil
}

func (f *MemoryFeed) ListTickets(_ context.Context, storeID string) ([]Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Ticket, 0)
	for _, t := range f.tickets {
		if t.StoreID == storeID && t.Status != StatusServed {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

// UpdateTicketStatus accepts only the next status in the lifecycle.
// Repeating the current status is accepted so client retries are harmless.
func (f *MemoryFeed) UpdateTicketStatus(_ context.Context, ticketID string, status Status) (Ticket, error) {
	const op = "kitchen.UpdateTicketStatus"
	if !status.Valid() {
		return Ticket{}, apperr.Validation(op, "unknown status %q", status)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return Ticket{}, apperr.NotFound(op, "ticket %q", ticketID)
	}
	if t.Status == status {
		return t.clone(), nil
	}
	action, ok := ActionFor(t.Status, status)
	if !ok {
		return Ticket{}, apperr.IllegalTransition(op, "ticket %s cannot go from %s to %s", t.Number, t.Status, status)
	}
	next, err := Advance(*t, action)
	if err != nil {
		return Ticket{}, err
	}
	*t = next
	return t.clone(), nil
}
