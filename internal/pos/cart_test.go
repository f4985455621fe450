package pos

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

func mustLine(t *testing.T, sel ...Selection) CartLine {
	t.Helper()
	l, err := BuildLine(burger, burgerGroups, 1, sel)
	require.NoError(t, err)
	return l
}

func TestCartMergePolicy(t *testing.T) {
	c := NewCart()
	first := mustLine(t, Selection{"size", "large"})
	id, err := c.AddLine(first, MergeIdentical)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	id, err = c.AddLine(mustLine(t, Selection{"size", "large"}), MergeIdentical)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	_, err = c.AddLine(mustLine(t, Selection{"size", "large"}), KeepDistinct)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)

	_, err = c.AddLine(mustLine(t, Selection{"size", "regular"}), MergeIdentical)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 3, "different modifiers never merge")
	assert.True(t, c.Total().Equal(d("258")))
}

func TestCartAddLineValidation(t *testing.T) {
	c := NewCart()
	l := mustLine(t, Selection{"size", "large"})
	_, err := c.AddLine(l, KeepDistinct)
	require.NoError(t, err)

	_, err = c.AddLine(l, KeepDistinct)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	l2 := mustLine(t, Selection{"size", "large"})
	l2.Quantity = 0
	_, err = c.AddLine(l2, KeepDistinct)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCartSetQuantityAndRemove(t *testing.T) {
	c := NewCart()
	a := mustLine(t, Selection{"size", "large"})
	b := mustLine(t, Selection{"size", "regular"})
	_, _ = c.AddLine(a, KeepDistinct)
	_, _ = c.AddLine(b, KeepDistinct)

	require.NoError(t, c.SetQuantity(a.ID, 3))
	assert.True(t, c.Total().Equal(d("258")))

	require.NoError(t, c.SetQuantity(a.ID, 0))
	_, ok := c.Line(a.ID)
	assert.False(t, ok, "qty 0 removes")
	assert.True(t, c.Total().Equal(d("60")))

	assert.ErrorIs(t, c.SetQuantity("ghost", 2), apperr.ErrNotFound)
	assert.ErrorIs(t, c.RemoveLine("ghost"), apperr.ErrNotFound)

	require.NoError(t, c.RemoveLine(b.ID))
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total().IsZero())
}

func TestCartTotalMatchesLineSumUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sels := [][]Selection{
		{{"size", "large"}},
		{{"size", "regular"}, {"extras", "no-bun"}},
		{{"size", "large"}, {"extras", "cheese"}},
	}

	c := NewCart()
	for i := 0; i < 300; i++ {
		switch op := rng.Intn(4); {
		case op == 0 || c.IsEmpty():
			l, err := BuildLine(burger, burgerGroups, 1+rng.Intn(3), sels[rng.Intn(len(sels))])
			require.NoError(t, err)
			_, err = c.AddLine(l, MergePolicy(rng.Intn(2)))
			require.NoError(t, err)
		case op == 1:
			l := c.Lines[rng.Intn(len(c.Lines))]
			require.NoError(t, c.SetQuantity(l.ID, rng.Intn(5)-1))
		case op == 2:
			l := c.Lines[rng.Intn(len(c.Lines))]
			require.NoError(t, c.RemoveLine(l.ID))
		default:
			if rng.Intn(10) == 0 {
				c.Clear()
			}
		}

		want := decimal.Zero
		for _, l := range c.Lines {
			want = want.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		require.True(t, c.Total().Equal(want), "step %d: total %s, want %s", i, c.Total(), want)
	}
}

func TestCartTotalsWithDiscountAndTax(t *testing.T) {
	c := NewCart()
	l := mustLine(t, Selection{"size", "large"})
	l.Quantity = 2
	_, _ = c.AddLine(l, KeepDistinct)

	require.NoError(t, c.SetDiscount(&Discount{Type: DiscountPercent, Value: d("10")}))
	require.NoError(t, c.SetTaxRate(d("0.16")))

	tot := c.Totals()
	assert.True(t, tot.Subtotal.Equal(d("132")))
	assert.True(t, tot.DiscountTotal.Equal(d("13.20")))
	assert.True(t, tot.Tax.Equal(d("19.01")), "got %s", tot.Tax)
	assert.True(t, tot.Total.Equal(d("137.81")), "got %s", tot.Total)

	require.NoError(t, c.SetDiscount(&Discount{Type: DiscountAmount, Value: d("500")}))
	tot = c.Totals()
	assert.True(t, tot.DiscountTotal.Equal(d("132")), "capped at subtotal")
	assert.True(t, tot.Total.IsZero())

	assert.ErrorIs(t, c.SetDiscount(&Discount{Type: DiscountPercent, Value: d("101")}), apperr.ErrValidation)
	assert.ErrorIs(t, c.SetDiscount(&Discount{Type: "bogo", Value: d("1")}), apperr.ErrValidation)
	assert.ErrorIs(t, c.SetTaxRate(d("-0.1")), apperr.ErrValidation)

	c.Clear()
	assert.Nil(t, c.Discount)
	assert.True(t, c.TaxRate.Equal(d("0.16")), "tax rate survives clear")
}

func TestCartCloneIsDeep(t *testing.T) {
	c := NewCart()
	_, _ = c.AddLine(mustLine(t, Selection{"size", "large"}, Selection{"extras", "bacon"}), KeepDistinct)
	require.NoError(t, c.SetDiscount(&Discount{Type: DiscountAmount, Value: d("5")}))

	cp := c.Clone()
	c.Lines[0].Quantity = 9
	c.Lines[0].Modifiers[0].Name = "changed"
	c.Discount.Value = d("1")

	assert.Equal(t, 1, cp.Lines[0].Quantity)
	assert.Equal(t, "Large", cp.Lines[0].Modifiers[0].Name)
	assert.True(t, cp.Discount.Value.Equal(d("5")))
}
