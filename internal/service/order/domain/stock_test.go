package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStock(t *testing.T, qty int) *StoreStock {
	t.Helper()
	s, err := NewStoreStock("store-1", Product{ID: "p1", Name: "Mug", UnitPrice: decimal.RequireFromString("9.99")}, qty)
	require.NoError(t, err)
	return s
}

func TestStoreStock_Reserve(t *testing.T) {
	s := newTestStock(t, 3)

	require.NoError(t, s.Reserve(2))
	assert.Equal(t, 1, s.Quantity)

	assert.ErrorIs(t, s.Reserve(2), ErrOutOfStock)
	assert.Equal(t, 1, s.Quantity, "failed reserve must not change quantity")

	require.NoError(t, s.Reserve(1))
	assert.Equal(t, 0, s.Quantity)
	assert.False(t, s.InStock())
}

func TestStoreStock_ReserveZeroAndNegative(t *testing.T) {
	s := newTestStock(t, 0)

	assert.NoError(t, s.Reserve(0))
	assert.Equal(t, 0, s.Quantity)
	assert.ErrorIs(t, s.Reserve(-1), ErrInvalidQuantity)
	assert.ErrorIs(t, s.Release(-1), ErrInvalidQuantity)
}

func TestStoreStock_ReserveThenReleaseRestores(t *testing.T) {
	s := newTestStock(t, 5)

	require.NoError(t, s.Reserve(4))
	require.NoError(t, s.Release(4))
	assert.Equal(t, 5, s.Quantity)
}

func TestNewStoreStock_Invalid(t *testing.T) {
	_, err := NewStoreStock("", Product{ID: "p1"}, 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = NewStoreStock("s", Product{ID: "p1"}, -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = NewStoreStock("s", Product{ID: "p1", UnitPrice: decimal.NewFromInt(-1)}, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
