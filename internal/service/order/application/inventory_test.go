package application

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
)

func TestInventory_ReserveRelease(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "p1", "5.00", 3)

	require.NoError(t, e.inventory.Reserve(e.ctx, testStore, "p1", 2))
	assert.Equal(t, 1, e.stockQty(t, "p1"))

	err := e.inventory.Reserve(e.ctx, testStore, "p1", 2)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 1, e.stockQty(t, "p1"), "rejected reserve must leave quantity unchanged")

	require.NoError(t, e.inventory.Release(e.ctx, testStore, "p1", 2))
	assert.Equal(t, 3, e.stockQty(t, "p1"))
}

func TestInventory_EdgeCases(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "p1", "5.00", 1)

	assert.NoError(t, e.inventory.Reserve(e.ctx, testStore, "p1", 0))
	assert.Equal(t, 1, e.stockQty(t, "p1"))

	assert.ErrorIs(t, e.inventory.Reserve(e.ctx, testStore, "p1", -1), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, e.inventory.Release(e.ctx, testStore, "p1", -1), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, e.inventory.Reserve(e.ctx, testStore, "missing", 1), domain.ErrProductNotFound)
	assert.ErrorIs(t, e.inventory.Release(e.ctx, testStore, "missing", 1), domain.ErrProductNotFound)
	// 门店是显式的，同一个商品在其他门店不存在
	assert.ErrorIs(t, e.inventory.Reserve(e.ctx, "store-2", "p1", 1), domain.ErrProductNotFound)
}

func TestInventory_NeverNegative(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "p1", "1.00", 5)

	ops := []struct {
		reserve bool
		qty     int
	}{
		{true, 3}, {true, 3}, {false, 1}, {true, 3}, {true, 1}, {false, 4}, {true, 5}, {true, 1},
	}
	expected := 5
	for _, op := range ops {
		var err error
		if op.reserve {
			err = e.inventory.Reserve(e.ctx, testStore, "p1", op.qty)
			if expected-op.qty < 0 {
				assert.ErrorIs(t, err, domain.ErrOutOfStock)
			} else {
				require.NoError(t, err)
				expected -= op.qty
			}
		} else {
			require.NoError(t, e.inventory.Release(e.ctx, testStore, "p1", op.qty))
			expected += op.qty
		}
		qty := e.stockQty(t, "p1")
		assert.Equal(t, expected, qty)
		assert.GreaterOrEqual(t, qty, 0)
	}
}

func TestInventory_AddProductAndRestock(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "p1", "9.99", 0)

	_, err := e.inventory.AddProduct(e.ctx, testStore, domain.Product{ID: "p1", UnitPrice: decimal.NewFromInt(1)}, 1)
	assert.ErrorIs(t, err, domain.ErrProductAlreadyStocked)

	st, err := e.inventory.Restock(e.ctx, testStore, "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Quantity)
	assert.True(t, st.Product.UnitPrice.Equal(decimal.RequireFromString("9.99")))

	_, err = e.inventory.Restock(e.ctx, testStore, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

// conflictOnceUnitOfWork 第一次事务返回乐观锁冲突，用来验证只重试一次
type conflictOnceUnitOfWork struct {
	domain.UnitOfWork
	failures int
	calls    int
}

func (u *conflictOnceUnitOfWork) Transaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	u.calls++
	if u.calls <= u.failures {
		return domain.ErrConcurrentUpdate
	}
	return u.UnitOfWork.Transaction(ctx, fn)
}

func TestInventory_RetriesOnceOnConflict(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "p1", "1.00", 2)

	once := &conflictOnceUnitOfWork{UnitOfWork: e.uow, failures: 1}
	svc := NewInventoryService(once, e.inventory.tracer, e.metrics)
	require.NoError(t, svc.Reserve(e.ctx, testStore, "p1", 1))
	assert.Equal(t, 2, once.calls)
	assert.Equal(t, 1, e.stockQty(t, "p1"))

	twice := &conflictOnceUnitOfWork{UnitOfWork: e.uow, failures: 2}
	svc = NewInventoryService(twice, e.inventory.tracer, e.metrics)
	err := svc.Reserve(e.ctx, testStore, "p1", 1)
	assert.True(t, errors.Is(err, domain.ErrConcurrentUpdate))
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Equal(t, 2, twice.calls)
	assert.Equal(t, float64(3), testutil.ToFloat64(e.metrics.Conflicts))
}
