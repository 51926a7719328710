// internal/service/order/domain/order.go
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order 是结账成功后的终态记录，创建之后不再修改。
type Order struct {
	ID                   string
	StoreID              string
	UserID               string
	PaymentTransactionID string
	Total                decimal.Decimal
	Lines                []OrderLine
	CreatedAt            time.Time
}

// OrderLine 与 Order 在同一个事务中创建，单价是成交时的价格。
type OrderLine struct {
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// 工厂函数: NewOrder 根据购物车快照和已成功的扣款创建订单。
// charged 必须与订单行合计完全相等，否则说明扣款金额与购物车不一致。
func NewOrder(id, storeID string, basket *Basket, transactionID string, charged decimal.Decimal, now time.Time) (*Order, error) {
	if id == "" || basket == nil || basket.UserID == "" {
		return nil, errors.New("cannot create order with empty required fields")
	}
	if basket.Empty() {
		return nil, ErrEmptyBasket
	}
	if transactionID == "" {
		return nil, errors.New("cannot create order without a payment transaction")
	}

	order := &Order{
		ID:                   id,
		StoreID:              storeID,
		UserID:               basket.UserID,
		PaymentTransactionID: transactionID,
		Total:                charged,
		Lines:                make([]OrderLine, 0, len(basket.Lines)),
		CreatedAt:            now,
	}
	for _, l := range basket.Lines {
		order.Lines = append(order.Lines, OrderLine{
			OrderID:   id,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	if sum := order.LinesTotal(); !sum.Equal(charged) {
		return nil, fmt.Errorf("order lines total %s does not match charged amount %s", sum, charged)
	}
	return order, nil
}

// LinesTotal 重新计算订单行合计。
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
