package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog"
	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/cache"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
)

type fakeOrders struct {
	mu        sync.Mutex
	byKey     map[string]string
	orders    map[string]Order
	cancelled []string
	fail      error
	seq       int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byKey: map[string]string{}, orders: map[string]Order{}}
}

func (f *fakeOrders) SubmitOrder(_ context.Context, key string, o Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	if id, ok := f.byKey[key]; ok {
		return id, nil
	}
	f.seq++
	id := "order-" + string(rune('0'+f.seq))
	f.byKey[key] = id
	o.ID = id
	f.orders[id] = o
	return id, nil
}

func (f *fakeOrders) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	for k, v := range f.byKey {
		if v == id {
			delete(f.byKey, k)
		}
	}
	delete(f.orders, id)
	return nil
}

// failingDrawerRepo lets RecordSale fail once at the persistence layer.
type failingDrawerRepo struct {
	*drawer.MemoryRepository
	failSale bool
}

func (r *failingDrawerRepo) ApplyTransition(ctx context.Context, t drawer.Transition) error {
	if r.failSale && t.Action == drawer.ActionSale {
		r.failSale = false
		return errors.New("disk full")
	}
	return r.MemoryRepository.ApplyTransition(ctx, t)
}

type fixture struct {
	orders  *fakeOrders
	drawers *drawer.Service
	repo    *failingDrawerRepo
	carts   *pos.CacheStore
	sagas   *sagalog.MemoryRepository
	settler *Settler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders: newFakeOrders(),
		repo:   &failingDrawerRepo{MemoryRepository: drawer.NewMemoryRepository()},
		carts:  pos.NewCacheStore(cache.NewMemoryCache("pos"), nil),
		sagas:  sagalog.NewMemoryRepository(),
	}
	f.drawers = drawer.NewService(f.repo, nil)
	f.settler = NewSettler(f.orders, f.drawers, f.carts, f.sagas, nil)
	return f
}

func (f *fixture) openDrawer(t *testing.T, float string) {
	t.Helper()
	_, err := f.drawers.Open(context.Background(), "store-1", dec(float), "ana")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	st, err := f.drawers.State(context.Background(), "store-1")
	require.NoError(t, err)
	return st.Balance
}

func TestCheckoutCashEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDrawer(t, "100")

	cart := cartOf66(t)
	require.NoError(t, f.carts.Save(ctx, "store-1", cart))

	res, err := f.settler.Checkout(ctx, "store-1", cart, Request{Method: MethodCash, CashGiven: cash("70"), IdempotencyKey: "k1"})
	require.NoError(t, err)

	assert.Equal(t, "order-1", res.Order.ID)
	assert.True(t, res.Order.Total.Equal(dec("66")))
	assert.True(t, res.Order.Change.Equal(dec("4")))
	assert.True(t, res.Cart.IsEmpty())
	require.NotNil(t, res.Sale)
	assert.Equal(t, "order-1", res.Sale.OrderRef)

	stored, err := f.carts.Load(ctx, "store-1")
	require.NoError(t, err)
	assert.True(t, stored.IsEmpty())
	assert.True(t, f.balance(t).Equal(dec("166")))

	moves, _ := f.drawers.Movements(ctx, "store-1")
	require.Len(t, moves, 1, "exactly one +total delta")

	rows, _ := f.sagas.History(ctx, "k1")
	assert.Equal(t, sagalog.StatusCompleted, rows[len(rows)-1].Status)
}

func TestCheckoutCardSkipsDrawer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.settler.Checkout(ctx, "store-1", cartOf66(t), Request{Method: MethodCard})
	require.NoError(t, err, "card works with a closed drawer")
	assert.Nil(t, res.Sale)
	assert.True(t, res.CashDelta.IsZero())
	assert.True(t, f.balance(t).IsZero())
}

func TestCheckoutCashNeedsOpenDrawer(t *testing.T) {
	f := newFixture(t)
	_, err := f.settler.Checkout(context.Background(), "store-1", cartOf66(t), Request{Method: MethodCash, CashGiven: cash("70")})
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)
	assert.Empty(t, f.orders.orders, "nothing submitted")
}

func TestCheckoutInsufficientCashTouchesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDrawer(t, "100")
	cart := cartOf66(t)
	require.NoError(t, f.carts.Save(ctx, "store-1", cart))

	_, err := f.settler.Checkout(ctx, "store-1", cart, Request{Method: MethodCash, CashGiven: cash("60")})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	stored, _ := f.carts.Load(ctx, "store-1")
	assert.Len(t, stored.Lines, 1)
	assert.True(t, f.balance(t).Equal(dec("100")))
	assert.Empty(t, f.orders.orders)
}

func TestCheckoutRollsBackWhenSaleFailsThenRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDrawer(t, "100")
	cart := cartOf66(t)
	require.NoError(t, f.carts.Save(ctx, "store-1", cart))

	f.repo.failSale = true
	req := Request{Method: MethodCash, CashGiven: cash("70"), IdempotencyKey: "k-retry"}
	_, err := f.settler.Checkout(ctx, "store-1", cart, req)
	require.ErrorIs(t, err, apperr.ErrPersistence)

	assert.Equal(t, []string{"order-1"}, f.orders.cancelled, "order half undone")
	stored, _ := f.carts.Load(ctx, "store-1")
	assert.Len(t, stored.Lines, 1, "cart restored")
	assert.True(t, f.balance(t).Equal(dec("100")), "drawer untouched")

	res, err := f.settler.Checkout(ctx, "store-1", cart, req)
	require.NoError(t, err)
	assert.True(t, f.balance(t).Equal(dec("166")))
	assert.NotEmpty(t, res.Order.ID)
	assert.Len(t, f.orders.orders, 1)

	rows, _ := f.sagas.History(ctx, "k-retry")
	var statuses []sagalog.Status
	for _, r := range rows {
		statuses = append(statuses, r.Status)
	}
	assert.Contains(t, statuses, sagalog.StatusFailed)
	assert.Equal(t, sagalog.StatusCompleted, statuses[len(statuses)-1])
}

func TestCheckoutSubmitFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDrawer(t, "100")
	f.orders.fail = errors.New("order service unavailable")

	_, err := f.settler.Checkout(ctx, "store-1", cartOf66(t), Request{Method: MethodCash, CashGiven: cash("70")})
	require.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Empty(t, f.orders.cancelled, "nothing to compensate")
	assert.True(t, f.balance(t).Equal(dec("100")))
}

func TestCheckoutSameKeyReusesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.settler.Checkout(ctx, "store-1", cartOf66(t), Request{Method: MethodCard, IdempotencyKey: "same"})
	require.NoError(t, err)
	b, err := f.settler.Checkout(ctx, "store-1", cartOf66(t), Request{Method: MethodCard, IdempotencyKey: "same"})
	require.NoError(t, err)
	assert.Equal(t, a.Order.ID, b.Order.ID)
}

func TestCheckoutCashZeroTotalBooksNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDrawer(t, "100")

	cart := cartOf66(t)
	require.NoError(t, cart.SetDiscount(&pos.Discount{Type: pos.DiscountPercent, Value: dec("100")}))
	require.True(t, CanSettle(cart, MethodCash, cash("0")))

	res, err := f.settler.Checkout(ctx, "store-1", cart, Request{Method: MethodCash, CashGiven: cash("0"), IdempotencyKey: "free"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.Order.ID)
	assert.True(t, res.Order.Change.IsZero())
	assert.Nil(t, res.Sale)
	assert.Empty(t, f.orders.cancelled)

	assert.True(t, f.balance(t).Equal(dec("100")))
	moves, _ := f.drawers.Movements(ctx, "store-1")
	assert.Empty(t, moves)
}

// rejectingOrders refuses every submission as bad input.
type rejectingOrders struct{ *fakeOrders }

func (rejectingOrders) SubmitOrder(context.Context, string, Order) (string, error) {
	return "", apperr.Validation("orders.SubmitOrder", "idempotency key reused")
}

func TestCheckoutRejectedOrderIsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDrawer(t, "100")
	cart := cartOf66(t)
	require.NoError(t, f.carts.Save(ctx, "store-1", cart))

	s := NewSettler(rejectingOrders{f.orders}, f.drawers, f.carts, f.sagas, nil)
	_, err := s.Checkout(ctx, "store-1", cart, Request{Method: MethodCash, CashGiven: cash("70"), IdempotencyKey: "k"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.NotErrorIs(t, err, apperr.ErrPersistence)

	stored, _ := f.carts.Load(ctx, "store-1")
	assert.Len(t, stored.Lines, 1)
	assert.True(t, f.balance(t).Equal(dec("100")))
}
