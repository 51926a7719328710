// internal/service/order/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// CheckoutRequest 是结账用例的输入数据
type CheckoutRequest struct {
	StoreID     string
	UserID      string
	CustomerRef string
	Card        port.Card
}

// CheckoutResult 是结账用例的输出数据。失败时也会返回，State 表明流程停在哪一步。
type CheckoutResult struct {
	CheckoutID    string               `json:"checkoutId"`
	OrderID       string               `json:"orderId,omitempty"`
	TransactionID string               `json:"transactionId,omitempty"`
	Total         decimal.Decimal      `json:"total"`
	State         domain.CheckoutState `json:"state"`
}

type RefundResponse struct {
	TransactionID string `json:"transactionId"`
	RefundID      string `json:"refundId"`
	OrderID       string `json:"orderId,omitempty"`
}

// LineView 是购物车行对外展示的结构
type LineView struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type BasketView struct {
	UserID string          `json:"userId"`
	Lines  []LineView      `json:"lines"`
	Items  int             `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

type StockView struct {
	StoreID     string          `json:"storeId"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

type OrderLineView struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type OrderView struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"storeId"`
	UserID        string          `json:"userId"`
	TransactionID string          `json:"transactionId"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	Lines         []OrderLineView `json:"lines"`
	// Status 为 paid 或 refunded
	Status   string `json:"status"`
	RefundID string `json:"refundId,omitempty"`
}

const (
	OrderPaid     = "paid"
	OrderRefunded = "refunded"
)

// ToLineView 从领域对象转换为展示 DTO
func ToLineView(l *domain.BasketLine) LineView {
	return LineView{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: l.Subtotal()}
}

func ToBasketView(b *domain.Basket) *BasketView {
	view := &BasketView{UserID: b.UserID, Lines: make([]LineView, 0, len(b.Lines)), Items: b.ItemCount(), Total: b.Total()}
	for _, l := range b.Lines {
		view.Lines = append(view.Lines, ToLineView(l))
	}
	return view
}

func ToStockView(s *domain.StoreStock) *StockView {
	return &StockView{
		StoreID:     s.StoreID,
		ProductID:   s.Product.ID,
		ProductName: s.Product.Name,
		UnitPrice:   s.Product.UnitPrice,
		Quantity:    s.Quantity,
	}
}

func ToOrderView(o *domain.Order) *OrderView {
	view := &OrderView{
		ID:            o.ID,
		StoreID:       o.StoreID,
		UserID:        o.UserID,
		TransactionID: o.PaymentTransactionID,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
		Lines:         make([]OrderLineView, 0, len(o.Lines)),
		Status:        OrderPaid,
	}
	for _, l := range o.Lines {
		view.Lines = append(view.Lines, OrderLineView{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return view
}

func (v *OrderView) markRefunded(refundID string) {
	if refundID == "" {
		return
	}
	v.Status = OrderRefunded
	v.RefundID = refundID
}
