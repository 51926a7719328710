package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// NotificationHandler 是结账流程的最后一步，投递订单确认通知。
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(cc *CheckoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.Notification")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", cc.Order.ID),
		attribute.String("user.id", cc.UserID),
	)

	logger.Ctx(ctx).Info().Str("order", cc.Order.ID).Msg("【Saga】=> 步骤 Final: 发送订单确认通知...")

	// 通知失败不影响已经完成的订单，只记录并继续
	if err := cc.Notifier.Enqueue(ctx, cc.Order.ID, cc.UserID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", cc.Order.ID).Msg("failed to enqueue order notification")
		span.RecordError(err)
	}
	cc.Transition(domain.StateCompleted)

	return h.executeNext(cc)
}
