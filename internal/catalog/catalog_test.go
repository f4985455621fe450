package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/cache"
)

func sampleCatalog() *Catalog {
	return &Catalog{
		StoreID: "store-1",
		ModifierGroups: []ModifierGroup{
			{ID: "size", Name: "Size", Min: 1, Max: 1, Options: []ModifierOption{
				{ID: "large", Name: "Large", PriceDelta: decimal.NewFromInt(6)},
			}},
		},
		Items: []Item{
			{ID: "burger", Name: "Burger", BasePrice: decimal.NewFromInt(60), Active: true, ModifierGroupIDs: []string{"size"}},
		},
	}
}

func TestLoadExampleFile(t *testing.T) {
	c, err := LoadFile(filepath.Join("..", "..", "config", "catalog.example.json"))
	require.NoError(t, err)

	burger, ok := c.Item("itm-burger")
	require.True(t, ok)
	assert.True(t, burger.BasePrice.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, StationHot, burger.Station)

	groups, err := c.GroupsFor(burger)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "grp-size", groups[0].ID)

	opt, ok := groups[1].Option("opt-no-bun")
	require.True(t, ok)
	assert.True(t, opt.PriceDelta.Equal(decimal.NewFromInt(-3)))
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "decode")
}

func TestValidate(t *testing.T) {
	c := sampleCatalog()
	require.NoError(t, c.Validate())

	c.ModifierGroups[0].Min = 2
	err := c.Validate()
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c = sampleCatalog()
	c.Items[0].ModifierGroupIDs = []string{"ghost"}
	assert.ErrorIs(t, c.Validate(), apperr.ErrNotFound)

	c = sampleCatalog()
	c.Items = append(c.Items, c.Items[0])
	assert.ErrorContains(t, c.Validate(), "duplicate item")
}

func TestMemorySource(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()

	_, err := src.GetCatalog(ctx, "store-9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	src.Put("*", sampleCatalog())
	c, err := src.GetCatalog(ctx, "store-9")
	require.NoError(t, err)
	assert.Equal(t, "store-9", c.StoreID)
}

type countingSource struct {
	calls atomic.Int32
	fail  bool
}

func (s *countingSource) GetCatalog(_ context.Context, storeID string) (*Catalog, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, errors.New("upstream down")
	}
	time.Sleep(5 * time.Millisecond)
	c := sampleCatalog()
	c.StoreID = storeID
	return c, nil
}

func TestCachedSourceCollapsesMisses(t *testing.T) {
	ctx := context.Background()
	upstream := &countingSource{}
	src := NewCachedSource(upstream, cache.NewMemoryCache("pos"), time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := src.GetCatalog(ctx, "store-1")
			assert.NoError(t, err)
			assert.Equal(t, "store-1", c.StoreID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), upstream.calls.Load())

	c, err := src.GetCatalog(ctx, "store-1")
	require.NoError(t, err)
	item, ok := c.Item("burger")
	require.True(t, ok)
	assert.True(t, item.BasePrice.Equal(decimal.NewFromInt(60)), "decimal survives the cache round trip")

	require.NoError(t, src.Invalidate(ctx, "store-1"))
	_, err = src.GetCatalog(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestCachedSourcePropagatesUpstreamError(t *testing.T) {
	src := NewCachedSource(&countingSource{fail: true}, cache.NewMemoryCache("pos"), 0, nil)
	_, err := src.GetCatalog(context.Background(), "store-1")
	assert.ErrorContains(t, err, "upstream down")
}
