package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// ChargeHandler 扣款。不在任何数据库事务中执行。
// 从这一步开始，流程与调用方的取消解耦，必须跑完（落库或者退款）。
type ChargeHandler struct {
	NextHandler
}

func (h *ChargeHandler) Handle(cc *CheckoutContext) error {
	cc.Ctx = context.WithoutCancel(cc.Ctx)

	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.Charge")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.total", cc.Total.StringFixed(2)))

	logger.Ctx(ctx).Info().Str("checkout", cc.CheckoutID).Str("total", cc.Total.StringFixed(2)).Msg("【Saga】=> 步骤 4: 扣款...")

	chargeCtx, cancel := context.WithTimeout(ctx, cc.PaymentTimeout)
	defer cancel()

	cc.ChargeAttempted = true
	result, err := cc.Payment.Charge(chargeCtx, cc.Token, cc.Total, cc.CustomerRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "charge failed")
		return fmt.Errorf("%w: %v", domain.ErrChargeFailed, err)
	}
	if !result.Succeeded() {
		span.SetStatus(codes.Error, "charge not succeeded")
		return fmt.Errorf("%w: status %s", domain.ErrChargeFailed, result.Status)
	}
	cc.Charge = result
	cc.Transition(domain.StateCharged)
	span.SetAttributes(attribute.String("payment.transaction_id", result.TransactionID))

	// 注册补偿：后续步骤失败时全额退款
	cc.AddCompensation(func(compCtx context.Context) error {
		compCtx, compSpan := cc.Tracer.Start(compCtx, "saga.compensation.Refund")
		defer compSpan.End()
		compSpan.SetAttributes(attribute.String("payment.transaction_id", result.TransactionID))

		refundCtx, cancel := context.WithTimeout(compCtx, cc.PaymentTimeout)
		defer cancel()

		refund, err := cc.Payment.Refund(refundCtx, result.TransactionID)
		if err == nil && !refund.Succeeded() {
			err = fmt.Errorf("status %s", refund.Status)
		}
		if err != nil {
			cc.Metrics.Refunds.WithLabelValues("failed").Inc()
			compSpan.RecordError(err)
			compSpan.SetStatus(codes.Error, "refund failed")
			logger.Ctx(compCtx).Error().Err(err).
				Str("checkout", cc.CheckoutID).
				Str("transaction", result.TransactionID).
				Bool("manual_reconciliation", true).
				Msg("automatic refund failed")
			return fmt.Errorf("%w: %v", domain.ErrRefundFailed, err)
		}
		cc.Metrics.Refunds.WithLabelValues("succeeded").Inc()
		cc.RefundID = refund.RefundID
		logger.Ctx(compCtx).Warn().Str("checkout", cc.CheckoutID).Str("refund", refund.RefundID).Msg("charge refunded")
		return nil
	})

	return h.executeNext(cc)
}
