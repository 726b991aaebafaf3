package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/catalog"
)

func product(id, category string, price int64, stock int) catalog.Product {
	return catalog.Product{
		ID:            id,
		Name:          "product " + id,
		Price:         decimal.NewFromInt(price),
		Category:      category,
		StockQuantity: stock,
		InStock:       stock > 0,
	}
}

func TestAddInsertsThenIncrements(t *testing.T) {
	l := NewLedger(nil)
	p := product("p1", "sarees", 500, 5)

	inserted, err := l.Add(p, 2)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = l.Add(p, 1)
	require.NoError(t, err)
	require.False(t, inserted)

	require.Len(t, l.Lines(), 1)
	require.Equal(t, 3, l.ItemCount())
	require.Equal(t, "1500", l.Subtotal().String())
}

func TestAddRejectsBeyondStock(t *testing.T) {
	l := NewLedger(nil)
	p := product("p1", "sarees", 500, 5)
	_, err := l.Add(p, 4)
	require.NoError(t, err)

	_, err = l.Add(p, 2)
	require.ErrorIs(t, err, ErrStockExceeded)
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 6, stockErr.Requested)
	require.Equal(t, 5, stockErr.Available)
	require.Equal(t, 4, l.ItemCount(), "rejected add leaves state unchanged")

	_, err = l.Add(product("p2", "kurtas", 10, 0), 1)
	require.ErrorIs(t, err, ErrStockExceeded)
	require.Len(t, l.Lines(), 1)
}

func TestAddRefreshesSnapshot(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Add(product("p1", "sarees", 500, 5), 1)
	require.NoError(t, err)

	_, err = l.Add(product("p1", "sarees", 450, 2), 1)
	require.NoError(t, err)
	line := l.Lines()[0]
	require.Equal(t, 2, line.Product.StockQuantity)
	require.Equal(t, "900", l.Subtotal().String())

	require.ErrorIs(t, l.UpdateQuantity("p1", 3), ErrStockExceeded)
}

func TestAddRejectsNonPositive(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Add(product("p1", "sarees", 500, 5), 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = l.Add(product("p1", "sarees", 500, 5), -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Empty(t, l.Lines())
}

func TestUpdateQuantity(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Add(product("p1", "sarees", 500, 5), 1)
	require.NoError(t, err)

	require.NoError(t, l.UpdateQuantity("p1", 5))
	require.Equal(t, 5, l.ItemCount())

	require.ErrorIs(t, l.UpdateQuantity("p1", 6), ErrStockExceeded)
	require.Equal(t, 5, l.ItemCount())

	require.ErrorIs(t, l.UpdateQuantity("missing", 1), ErrLineNotFound)

	require.NoError(t, l.UpdateQuantity("p1", 0))
	require.Empty(t, l.Lines())
	require.NoError(t, l.UpdateQuantity("missing", -3), "non-positive quantity on absent line is a no-op remove")
}

func TestRemoveAndClear(t *testing.T) {
	l := NewLedger(nil)
	_, _ = l.Add(product("p1", "sarees", 100, 5), 1)
	_, _ = l.Add(product("p2", "kurtas", 200, 5), 1)

	l.Remove("absent")
	require.Len(t, l.Lines(), 2)
	l.Remove("p1")
	require.Equal(t, []string{"p2"}, []string{l.Lines()[0].ProductID})

	l.Clear()
	require.Empty(t, l.Lines())
	require.True(t, l.Subtotal().IsZero())
	require.Zero(t, l.ItemCount())
}

func TestCategoriesInInsertionOrder(t *testing.T) {
	l := NewLedger(nil)
	_, _ = l.Add(product("p1", "sarees", 100, 5), 1)
	_, _ = l.Add(product("p2", "kurtas", 100, 5), 1)
	_, _ = l.Add(product("p3", "sarees", 100, 5), 1)
	require.Equal(t, []string{"sarees", "kurtas"}, l.Categories())
}

func TestLinesReturnsCopy(t *testing.T) {
	l := NewLedger(nil)
	_, _ = l.Add(product("p1", "sarees", 100, 5), 1)
	lines := l.Lines()
	lines[0].Quantity = 99
	require.Equal(t, 1, l.ItemCount())
}

func TestNewLedgerDropsInvalidLines(t *testing.T) {
	p := product("p1", "sarees", 100, 5)
	l := NewLedger([]Line{
		{Quantity: 2, Product: p},
		{ProductID: "p1", Quantity: 1, Product: p},
		{ProductID: "p2", Quantity: 0, Product: product("p2", "x", 1, 1)},
	})
	require.Len(t, l.Lines(), 1)
	require.Equal(t, 2, l.ItemCount())
	require.Equal(t, []catalog.Adjustment{{ProductID: "p1", Quantity: 2}}, l.Adjustments())
}
