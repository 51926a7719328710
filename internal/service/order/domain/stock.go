// internal/service/order/domain/stock.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 是价格来源。加入购物车时单价会被快照到购物车行里。
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}

// StoreStock 是某个门店下某个商品的库存记录，也就是库存台账的一行。
// 不变式：Quantity >= 0，任何导致负数的扣减都会被拒绝，而不是截断为 0。
type StoreStock struct {
	ID        uint
	StoreID   string
	Product   Product
	Quantity  int
	Version   int // 乐观锁版本号，每次更新 +1
	UpdatedAt time.Time
}

// NewStoreStock 创建一条新的库存记录。
func NewStoreStock(storeID string, product Product, quantity int) (*StoreStock, error) {
	if storeID == "" || product.ID == "" {
		return nil, ErrInvalidRequest
	}
	if quantity < 0 || product.UnitPrice.IsNegative() {
		return nil, ErrInvalidQuantity
	}
	return &StoreStock{StoreID: storeID, Product: product, Quantity: quantity}, nil
}

// Reserve 扣减 qty 个库存。qty == 0 时什么也不做。
func (s *StoreStock) Reserve(qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty == 0 {
		return nil
	}
	if s.Quantity-qty < 0 {
		return ErrOutOfStock
	}
	s.Quantity -= qty
	return nil
}

// Release 归还 qty 个库存。在业务可能的范围内不考虑溢出。
func (s *StoreStock) Release(qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	s.Quantity += qty
	return nil
}

func (s *StoreStock) InStock() bool {
	return s.Quantity > 0
}
