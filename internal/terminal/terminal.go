// Package terminal is the POS console's view of one store at a time.
//
// A Terminal owns the active store's cart, its drawer handle and its kitchen
// board. Every mutation of those goes through the Terminal, which keeps the
// in-memory copy and the persisted copy in step: a change is made on a clone,
// persisted, and only then swapped in.
package terminal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/catalog"
	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
)

// Deps are the collaborators a Terminal drives. Kitchen may be nil for a
// console without a board.
type Deps struct {
	Catalog catalog.Source
	Carts   pos.CartStore
	Drawers *drawer.Service
	Settler *checkout.Settler
	Kitchen *kitchen.Service
}

type Options struct {
	// MergePolicy decides what AddItem does with an identical line.
	MergePolicy pos.MergePolicy
	// PollInterval is the kitchen board refresh period. Zero disables
	// background polling; the board is then refreshed on demand only.
	PollInterval time.Duration
	Log          *slog.Logger
}

type Terminal struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	storeID string
	cart    *pos.Cart
	board   *kitchen.Board
	poller  *kitchen.Poller
	// baseCtx outlives requests; pollers run under it.
	baseCtx context.Context
}

func New(ctx context.Context, deps Deps, opts Options) *Terminal {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Terminal{
		deps:    deps,
		opts:    opts,
		log:     log.With("component", "terminal"),
		baseCtx: ctx,
	}
}

// SelectStore makes storeID the active store. Everything scoped to the
// previous store is dropped and reloaded for the new one. A cart that cannot
// be read starts empty.
func (t *Terminal) SelectStore(ctx context.Context, storeID string) error {
	if storeID == "" {
		return apperr.Validation("terminal.SelectStore", "store id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.storeID
	t.stopPollerLocked()
	if prev != "" {
		t.deps.Drawers.Forget(prev)
	}

	cart, err := t.deps.Carts.Load(ctx, storeID)
	if err != nil {
		t.log.WarnContext(ctx, "cart unavailable, starting empty", "store_id", storeID, "error", err)
		cart = pos.NewCart()
	}
	if _, err := t.deps.Drawers.Reload(ctx, storeID); err != nil {
		t.log.WarnContext(ctx, "drawer state unavailable", "store_id", storeID, "error", err)
	}

	t.storeID = storeID
	t.cart = cart
	t.board = kitchen.NewBoard(storeID)
	if t.deps.Kitchen != nil && t.opts.PollInterval > 0 {
		t.poller = kitchen.NewPoller(t.deps.Kitchen, t.board, t.opts.PollInterval, t.log)
		t.poller.Start(t.baseCtx)
	}

	t.log.InfoContext(ctx, "store selected", "store_id", storeID, "previous", prev, "cart_lines", len(cart.Lines))
	return nil
}

func (t *Terminal) StoreID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storeID
}

// Close stops background work for the active store.
func (t *Terminal) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopPollerLocked()
}

func (t *Terminal) stopPollerLocked() {
	if t.poller != nil {
		t.poller.Stop()
		t.poller = nil
	}
}

func (t *Terminal) activeLocked(op string) (string, error) {
	if t.storeID == "" {
		return "", apperr.Validation(op, "no store selected")
	}
	return t.storeID, nil
}

// Catalog returns the active store's menu.
func (t *Terminal) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	storeID, err := t.active("terminal.Catalog")
	if err != nil {
		return nil, err
	}
	return t.deps.Catalog.GetCatalog(ctx, storeID)
}

func (t *Terminal) active(op string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(op)
}

// Cart returns a copy of the active cart.
func (t *Terminal) Cart() (*pos.Cart, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.activeLocked("terminal.Cart"); err != nil {
		return nil, err
	}
	return t.cart.Clone(), nil
}

// AddItem prices itemID with the chosen modifiers and adds it to the cart.
func (t *Terminal) AddItem(ctx context.Context, itemID string, quantity int, selections []pos.Selection) (pos.CartLine, *pos.Cart, error) {
	const op = "terminal.AddItem"

	menu, err := t.Catalog(ctx)
	if err != nil {
		return pos.CartLine{}, nil, err
	}
	item, ok := menu.Item(itemID)
	if !ok {
		return pos.CartLine{}, nil, apperr.NotFound(op, "item %q", itemID)
	}
	groups, err := menu.GroupsFor(item)
	if err != nil {
		return pos.CartLine{}, nil, err
	}
	line, err := pos.BuildLine(item, groups, quantity, selections)
	if err != nil {
		return pos.CartLine{}, nil, err
	}

	var lineID string
	cart, err := t.mutateCart(ctx, op, func(c *pos.Cart) error {
		id, aerr := c.AddLine(line, t.opts.MergePolicy)
		lineID = id
		return aerr
	})
	if err != nil {
		return pos.CartLine{}, nil, err
	}
	added, _ := cart.Line(lineID)
	return added, cart, nil
}

func (t *Terminal) SetQuantity(ctx context.Context, lineID string, quantity int) (*pos.Cart, error) {
	return t.mutateCart(ctx, "terminal.SetQuantity", func(c *pos.Cart) error {
		return c.SetQuantity(lineID, quantity)
	})
}

func (t *Terminal) RemoveLine(ctx context.Context, lineID string) (*pos.Cart, error) {
	return t.mutateCart(ctx, "terminal.RemoveLine", func(c *pos.Cart) error {
		return c.RemoveLine(lineID)
	})
}

func (t *Terminal) ClearCart(ctx context.Context) (*pos.Cart, error) {
	return t.mutateCart(ctx, "terminal.ClearCart", func(c *pos.Cart) error {
		c.Clear()
		return nil
	})
}

// SetDiscount replaces the cart discount; nil removes it.
func (t *Terminal) SetDiscount(ctx context.Context, d *pos.Discount) (*pos.Cart, error) {
	return t.mutateCart(ctx, "terminal.SetDiscount", func(c *pos.Cart) error {
		return c.SetDiscount(d)
	})
}

func (t *Terminal) SetNote(ctx context.Context, note string) (*pos.Cart, error) {
	return t.mutateCart(ctx, "terminal.SetNote", func(c *pos.Cart) error {
		c.SetNote(note)
		return nil
	})
}

func (t *Terminal) SetTaxRate(ctx context.Context, rate decimal.Decimal) (*pos.Cart, error) {
	return t.mutateCart(ctx, "terminal.SetTaxRate", func(c *pos.Cart) error {
		return c.SetTaxRate(rate)
	})
}

// mutateCart applies fn to a clone of the cart and persists it. The live
// cart is replaced only after the save succeeds.
func (t *Terminal) mutateCart(ctx context.Context, op string, fn func(*pos.Cart) error) (*pos.Cart, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	storeID, err := t.activeLocked(op)
	if err != nil {
		return nil, err
	}
	next := t.cart.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := t.deps.Carts.Save(ctx, storeID, next); err != nil {
		t.log.ErrorContext(ctx, "cart not saved, change discarded", "op", op, "store_id", storeID, "error", err)
		return nil, err
	}
	t.cart = next
	return next.Clone(), nil
}

// PreviewCheckout reports totals, change and whether confirm is allowed.
func (t *Terminal) PreviewCheckout(method checkout.PaymentMethod, cashGiven *decimal.Decimal) (checkout.Preview, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.activeLocked("terminal.PreviewCheckout"); err != nil {
		return checkout.Preview{}, err
	}
	return checkout.PreviewSettlement(t.cart, method, cashGiven), nil
}

// Checkout settles the active cart. On success the cart is the cleared one
// the settler persisted; on failure it is left exactly as it was.
func (t *Terminal) Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	storeID, err := t.activeLocked("terminal.Checkout")
	if err != nil {
		return checkout.Result{}, err
	}
	res, err := t.deps.Settler.Checkout(ctx, storeID, t.cart, req)
	if err != nil {
		if errors.Is(err, apperr.ErrIllegalTransition) {
			if _, rerr := t.deps.Drawers.Reload(ctx, storeID); rerr != nil {
				t.log.ErrorContext(ctx, "drawer reload failed", "store_id", storeID, "error", rerr)
			}
		}
		return checkout.Result{}, err
	}
	t.cart = res.Cart
	res.Cart = res.Cart.Clone()

	if t.poller != nil {
		// Pull the new ticket now instead of waiting for the next tick.
		if err := t.poller.RefreshOnce(ctx); err != nil {
			t.log.WarnContext(ctx, "board refresh after checkout failed", "store_id", storeID, "error", err)
		}
	}
	return res, nil
}

func (t *Terminal) DrawerState(ctx context.Context) (drawer.State, error) {
	storeID, err := t.active("terminal.DrawerState")
	if err != nil {
		return drawer.State{}, err
	}
	return t.deps.Drawers.State(ctx, storeID)
}

func (t *Terminal) DrawerMovements(ctx context.Context) ([]drawer.Move, error) {
	storeID, err := t.active("terminal.DrawerMovements")
	if err != nil {
		return nil, err
	}
	return t.deps.Drawers.Movements(ctx, storeID)
}

// DrawerHistory lists the active store's cash moves over [from, to),
// including sessions already closed.
func (t *Terminal) DrawerHistory(ctx context.Context, from, to time.Time) ([]drawer.Move, error) {
	storeID, err := t.active("terminal.DrawerHistory")
	if err != nil {
		return nil, err
	}
	return t.deps.Drawers.History(ctx, storeID, from, to)
}

func (t *Terminal) OpenDrawer(ctx context.Context, floatAmount decimal.Decimal, openedBy string) (drawer.State, error) {
	storeID, err := t.active("terminal.OpenDrawer")
	if err != nil {
		return drawer.State{}, err
	}
	return t.deps.Drawers.Open(ctx, storeID, floatAmount, openedBy)
}

func (t *Terminal) CashIn(ctx context.Context, amount decimal.Decimal, reason, by string) (drawer.Move, error) {
	storeID, err := t.active("terminal.CashIn")
	if err != nil {
		return drawer.Move{}, err
	}
	return t.deps.Drawers.CashIn(ctx, storeID, amount, reason, by)
}

func (t *Terminal) CashOut(ctx context.Context, amount decimal.Decimal, reason, by string) (drawer.Move, error) {
	storeID, err := t.active("terminal.CashOut")
	if err != nil {
		return drawer.Move{}, err
	}
	return t.deps.Drawers.CashOut(ctx, storeID, amount, reason, by)
}

// CloseDrawer reconciles the drawer against the physical count.
func (t *Terminal) CloseDrawer(ctx context.Context, counted *decimal.Decimal, countedBy string) (drawer.CloseReport, error) {
	storeID, err := t.active("terminal.CloseDrawer")
	if err != nil {
		return drawer.CloseReport{}, err
	}
	return t.deps.Drawers.Close(ctx, storeID, counted, countedBy)
}

func (t *Terminal) activeBoard(op string) (*kitchen.Board, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.activeLocked(op); err != nil {
		return nil, err
	}
	if t.deps.Kitchen == nil {
		return nil, apperr.NotFound(op, "kitchen board is not enabled")
	}
	return t.board, nil
}

// Board returns the kitchen columns of the active store.
func (t *Terminal) Board(f kitchen.Filter) (kitchen.View, error) {
	b, err := t.activeBoard("terminal.Board")
	if err != nil {
		return kitchen.View{}, err
	}
	return b.View(f), nil
}

// RefreshBoard fetches the feed now.
func (t *Terminal) RefreshBoard(ctx context.Context) (kitchen.MergeResult, error) {
	b, err := t.activeBoard("terminal.RefreshBoard")
	if err != nil {
		return kitchen.MergeResult{}, err
	}
	return t.deps.Kitchen.Refresh(ctx, b)
}

func (t *Terminal) AdvanceTicket(ctx context.Context, ticketID string, action kitchen.Action) (kitchen.Ticket, error) {
	b, err := t.activeBoard("terminal.AdvanceTicket")
	if err != nil {
		return kitchen.Ticket{}, err
	}
	return t.deps.Kitchen.Transition(ctx, b, ticketID, action)
}
