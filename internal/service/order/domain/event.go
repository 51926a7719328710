// internal/service/order/domain/event.go
package domain

import "time"

// OrderPlaced 是订单创建成功后发送给通知服务的消息，只携带订单号和用户号，
// 邮件/推送内容由通知服务自己组装。
type OrderPlaced struct {
	EventID  string    `json:"eventId"`
	TraceID  string    `json:"traceId,omitempty"`
	OrderID  string    `json:"orderId"`
	UserID   string    `json:"userId"`
	PlacedAt time.Time `json:"placedAt"`
}
