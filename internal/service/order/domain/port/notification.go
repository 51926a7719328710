package port

import "context"

// NotificationDispatcher 是订单确认通知的出站端口。
// Enqueue 只负责投递，不等待发送结果；失败不会影响已完成的订单。
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, orderID, userID string) error
}
