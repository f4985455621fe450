package kitchen

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// RefreshToken marks the moment a feed fetch began. Merge uses it to tell
// whether the fetched list can already contain a local change.
type RefreshToken struct {
	seq uint64
}

// overlay is a local status change not yet reconciled with the feed.
type overlay struct {
	opID      string
	ticketID  string
	prev      Status
	next      Status
	confirmed bool
	// confirmedAt is the board sequence at confirmation. Only a fetch that
	// began at or after it is guaranteed to reflect the change.
	confirmedAt uint64
}

type entry struct {
	ticket  Ticket
	arrival uint64
}

// Board is the local, store-scoped copy of the kitchen tickets. Staff
// actions are applied to it optimistically and tracked as overlays until the
// feed confirms them; polls are merged by ticket id, never by replacement.
type Board struct {
	mu sync.Mutex

	storeID  string
	tickets  map[string]*entry
	overlays map[string]*overlay // by ticket id
	ops      map[string]string   // op id -> ticket id

	seq        uint64
	arrivals   uint64
	lastMerged uint64
	newOpID    func() string
	mergedOnce bool
}

func NewBoard(storeID string) *Board {
	return &Board{
		storeID:  storeID,
		tickets:  make(map[string]*entry),
		overlays: make(map[string]*overlay),
		ops:      make(map[string]string),
		newOpID:  uuid.NewString,
	}
}

func (b *Board) StoreID() string { return b.storeID }

// BeginRefresh must be called before the feed is queried.
func (b *Board) BeginRefresh() RefreshToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return RefreshToken{seq: b.seq}
}

// MergeResult summarises what a merge changed.
type MergeResult struct {
	Added   int  `json:"added"`
	Updated int  `json:"updated"`
	Removed int  `json:"removed"`
	Kept    int  `json:"kept"`  // tickets whose local status won over the feed
	Stale   bool `json:"stale"` // the fetch started before one already merged; nothing applied
}

// Merge reconciles the board with an authoritative ticket list fetched under
// token. New tickets are appended, known tickets take the feed's status
// unless an overlay still outranks the fetch, and tickets the feed no longer
// returns are dropped unless overlaid.
func (b *Board) Merge(token RefreshToken, fresh []Ticket) MergeResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res MergeResult
	if b.mergedOnce && token.seq < b.lastMerged {
		res.Stale = true
		return res
	}
	b.mergedOnce = true
	b.lastMerged = token.seq

	seen := make(map[string]bool, len(fresh))
	for _, t := range fresh {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		e, ok := b.tickets[t.ID]
		if !ok {
			b.arrivals++
			b.tickets[t.ID] = &entry{ticket: t.clone(), arrival: b.arrivals}
			res.Added++
			continue
		}

		if ov := b.overlays[t.ID]; ov != nil {
			if b.outranks(ov, token) {
				local := e.ticket.Status
				e.ticket = t.clone()
				e.ticket.Status = local
				res.Kept++
				continue
			}
			b.clearOverlay(ov)
		}

		if e.ticket.Status != t.Status {
			res.Updated++
		}
		e.ticket = t.clone()
	}

	for id := range b.tickets {
		if seen[id] {
			continue
		}
		if ov := b.overlays[id]; ov != nil {
			if b.outranks(ov, token) {
				res.Kept++
				continue
			}
			b.clearOverlay(ov)
		}
		delete(b.tickets, id)
		res.Removed++
	}
	return res
}

// Begin applies action to a ticket locally and records an overlay. The
// returned op id is later passed to Confirm or Rollback.
func (b *Board) Begin(ticketID string, action Action) (string, Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.tickets[ticketID]
	if !ok {
		return "", Ticket{}, apperr.NotFound("kitchen.Begin", "ticket %q", ticketID)
	}
	if ov := b.overlays[ticketID]; ov != nil && !ov.confirmed {
		return "", Ticket{}, apperr.Validation("kitchen.Begin", "ticket %s has an update in flight", e.ticket.Number)
	}

	next, err := Advance(e.ticket, action)
	if err != nil {
		return "", Ticket{}, err
	}

	if ov := b.overlays[ticketID]; ov != nil {
		b.clearOverlay(ov)
	}
	b.seq++
	ov := &overlay{
		opID:     b.newOpID(),
		ticketID: ticketID,
		prev:     e.ticket.Status,
		next:     next.Status,
	}
	b.overlays[ticketID] = ov
	b.ops[ov.opID] = ticketID
	e.ticket.Status = next.Status
	return ov.opID, e.ticket.clone(), nil
}

// Confirm marks an op as accepted by the feed. Its overlay stays until a
// fetch that began after this point is merged.
func (b *Board) Confirm(opID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ov := b.overlayFor(opID)
	if ov == nil {
		return
	}
	b.seq++
	ov.confirmed = true
	ov.confirmedAt = b.seq
}

// Rollback restores the status a ticket had before the op.
func (b *Board) Rollback(opID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ov := b.overlayFor(opID)
	if ov == nil {
		return
	}
	if e, ok := b.tickets[ov.ticketID]; ok && e.ticket.Status == ov.next {
		e.ticket.Status = ov.prev
	}
	b.clearOverlay(ov)
}

// Ticket returns the local copy of a ticket, SERVED ones included.
func (b *Board) Ticket(id string) (Ticket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return e.ticket.clone(), true
}

// Pending is the number of unreconciled overlays.
func (b *Board) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.overlays)
}

// Filter narrows the board view. Zero values match everything.
type Filter struct {
	Channel Channel
	Status  Status
}

// View is the active board: one oldest-first column per active status.
type View struct {
	StoreID    string         `json:"storeId"`
	New        []Ticket       `json:"new"`
	InProgress []Ticket       `json:"inProgress"`
	Ready      []Ticket       `json:"ready"`
	Counts     map[Status]int `json:"counts"`
}

func (v View) Column(s Status) []Ticket {
	switch s {
	case StatusNew:
		return v.New
	case StatusInProgress:
		return v.InProgress
	case StatusReady:
		return v.Ready
	}
	return nil
}

// View builds the columns. Each column is ordered by creation time, then by
// the order the board first saw the ticket, then by id, so a refresh that
// does not change a ticket's status never moves it. Counts are taken from
// the same column slices.
func (b *Board) View(f Filter) View {
	b.mu.Lock()
	entries := make([]*entry, 0, len(b.tickets))
	for _, e := range b.tickets {
		if !e.ticket.Status.Active() {
			continue
		}
		if f.Channel != "" && e.ticket.Channel != f.Channel {
			continue
		}
		if f.Status != "" && e.ticket.Status != f.Status {
			continue
		}
		entries = append(entries, &entry{ticket: e.ticket.clone(), arrival: e.arrival})
	}
	b.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		if !a.ticket.CreatedAt.Equal(c.ticket.CreatedAt) {
			return a.ticket.CreatedAt.Before(c.ticket.CreatedAt)
		}
		if a.arrival != c.arrival {
			return a.arrival < c.arrival
		}
		return a.ticket.ID < c.ticket.ID
	})

	v := View{
		StoreID:    b.storeID,
		New:        []Ticket{},
		InProgress: []Ticket{},
		Ready:      []Ticket{},
	}
	for _, e := range entries {
		switch e.ticket.Status {
		case StatusNew:
			v.New = append(v.New, e.ticket)
		case StatusInProgress:
			v.InProgress = append(v.InProgress, e.ticket)
		case StatusReady:
			v.Ready = append(v.Ready, e.ticket)
		}
	}
	v.Counts = map[Status]int{
		StatusNew:        len(v.New),
		StatusInProgress: len(v.InProgress),
		StatusReady:      len(v.Ready),
	}
	return v
}

// outranks reports whether a local overlay must win over a fetch made
// under token: either the feed has not confirmed it yet, or it confirmed
// after the fetch began.
func (b *Board) outranks(ov *overlay, token RefreshToken) bool {
	return !ov.confirmed || ov.confirmedAt > token.seq
}

func (b *Board) overlayFor(opID string) *overlay {
	ticketID, ok := b.ops[opID]
	if !ok {
		return nil
	}
	ov := b.overlays[ticketID]
	if ov == nil || ov.opID != opID {
		return nil
	}
	return ov
}

func (b *Board) clearOverlay(ov *overlay) {
	delete(b.ops, ov.opID)
	if cur := b.overlays[ov.ticketID]; cur == ov {
		delete(b.overlays, ov.ticketID)
	}
}
