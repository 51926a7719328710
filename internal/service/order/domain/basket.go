// internal/service/order/domain/basket.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineState 显式地表示购物车行是否存在。
// 数量减到 0 时行先变为 LineAbsent，再由仓储删除，避免“行被删了就等于 0”这种隐式约定。
type LineState int

const (
	LineActive LineState = iota + 1
	LineAbsent
)

// BasketLine 是用户购物车中的一行。它的存在本身就代表一份库存预占。
// 同一用户同一商品至多一行，数量变化只修改这一行。
type BasketLine struct {
	ID        uint
	StoreID   string
	UserID    string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal // 加入购物车时的单价快照
	Version   int
	State     LineState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBasketLine 创建数量为 1 的新行。
func NewBasketLine(storeID, userID string, product Product, now time.Time) *BasketLine {
	return &BasketLine{
		StoreID:   storeID,
		UserID:    userID,
		ProductID: product.ID,
		Quantity:  1,
		UnitPrice: product.UnitPrice,
		State:     LineActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (l *BasketLine) Active() bool {
	return l.State == LineActive && l.Quantity > 0
}

// Increase 数量 +1。
func (l *BasketLine) Increase(now time.Time) error {
	if !l.Active() {
		return ErrLineNotFound
	}
	l.Quantity++
	l.UpdatedAt = now
	return nil
}

// Decrease 数量 -1；减到 0 时行进入 LineAbsent 状态，永远不会出现负数。
func (l *BasketLine) Decrease(now time.Time) error {
	if !l.Active() {
		return ErrLineNotFound
	}
	l.Quantity--
	if l.Quantity == 0 {
		l.State = LineAbsent
	}
	l.UpdatedAt = now
	return nil
}

// Remove 把整行标记为不存在，返回需要归还的库存数量。
func (l *BasketLine) Remove(now time.Time) (int, error) {
	if !l.Active() {
		return 0, ErrLineNotFound
	}
	qty := l.Quantity
	l.State = LineAbsent
	l.UpdatedAt = now
	return qty, nil
}

// Subtotal = 数量 × 单价快照
func (l *BasketLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Basket 是某个用户在某一时刻的购物车快照。
type Basket struct {
	UserID string
	Lines  []*BasketLine
}

func NewBasket(userID string, lines []*BasketLine) *Basket {
	return &Basket{UserID: userID, Lines: lines}
}

func (b *Basket) Empty() bool {
	return len(b.Lines) == 0
}

// Total 是所有行小计之和，结账时扣款金额以此为准。
func (b *Basket) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount 返回所有行的数量之和。
func (b *Basket) ItemCount() int {
	n := 0
	for _, l := range b.Lines {
		n += l.Quantity
	}
	return n
}

func (b *Basket) ProductIDs() []string {
	ids := make([]string, 0, len(b.Lines))
	for _, l := range b.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
