package sqlstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// openPostgresStore connects to DRAWER_TEST_PG_DSN and returns a store id
// unique to the test. Rows written under it are removed on cleanup.
func openPostgresStore(t *testing.T) (*Store, string) {
	t.Helper()
	dsn := os.Getenv("DRAWER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("DRAWER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, "pgx", dsn)
	require.NoError(t, err)

	storeID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_moves WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_drawers WHERE store_id = $1`, storeID)
		_ = s.Close()
	})
	return s, storeID
}

func TestPostgresStoreThroughService(t *testing.T) {
	ctx := context.Background()
	store, storeID := openPostgresStore(t)
	svc := drawer.NewService(store, nil)

	st, moves, err := store.GetDrawerState(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, drawer.StatusClosed, st.Status)
	assert.Empty(t, moves)

	opened, err := svc.Open(ctx, storeID, dec("500"), "ana")
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, storeID, dec("50"), "order-1")
	require.NoError(t, err)
	_, err = svc.CashOut(ctx, storeID, dec("12.50"), "ice", "ana")
	require.NoError(t, err)

	got, moves, err := store.GetDrawerState(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, drawer.StatusOpen, got.Status)
	assert.True(t, got.Balance.Equal(dec("537.50")))
	assert.True(t, got.FloatAmount.Equal(dec("500")))
	assert.Equal(t, opened.Version+2, got.Version)
	require.NotNil(t, got.OpenedAt)
	assert.WithinDuration(t, *opened.OpenedAt, *got.OpenedAt, time.Microsecond)
	require.Len(t, moves, 2)
	assert.Equal(t, drawer.MoveSale, moves[0].Type)
	assert.Equal(t, "order-1", moves[0].OrderRef)
	assert.True(t, moves[1].Amount.Equal(dec("-12.50")))

	counted := dec("540")
	report, err := svc.Close(ctx, storeID, &counted, "ana")
	require.NoError(t, err)
	assert.True(t, report.Difference.Equal(dec("2.50")))

	got, _, err = store.GetDrawerState(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, drawer.StatusClosed, got.Status)
	assert.Nil(t, got.OpenedAt)

	all, err := svc.History(ctx, storeID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, drawer.MoveAdjustment, all[2].Type)
}

func TestPostgresUpsertRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store, storeID := openPostgresStore(t)

	dr := drawer.New(storeID)
	tr, err := dr.Open(dec("100"), "ana")
	require.NoError(t, err)
	require.NoError(t, store.ApplyTransition(ctx, tr))

	err = store.ApplyTransition(ctx, tr)
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)

	dr.Apply(tr)
	sale, err := dr.RecordSale(dec("10"), "order-1")
	require.NoError(t, err)
	require.NoError(t, store.ApplyTransition(ctx, sale))
	assert.ErrorIs(t, store.ApplyTransition(ctx, sale), apperr.ErrIllegalTransition)

	st, moves, err := store.GetDrawerState(ctx, storeID)
	require.NoError(t, err)
	assert.True(t, st.Balance.Equal(dec("110")))
	assert.Len(t, moves, 1, "rejected transitions insert no moves")
}
