// internal/service/order/domain/checkout_record.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutRecord 记录走到扣款步骤的每一次结账，独立于订单事务写入，
// 这样 CHARGED_BUT_UNRECORDED 的情况也能留下持久化的对账线索。
type CheckoutRecord struct {
	ID            string          `json:"checkoutId"`
	StoreID       string          `json:"storeId"`
	UserID        string          `json:"userId"`
	OrderID       string          `json:"orderId,omitempty"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	State         CheckoutState   `json:"state"`
	RefundID      string          `json:"refundId,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
