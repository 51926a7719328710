package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// PersistOrderHandler 在同一个事务中写入订单、订单行，然后删除结账时读到的购物车行。
// 删除只会发生在订单写入之后，且删除时不归还库存：预占的库存就此被订单消费。
type PersistOrderHandler struct {
	NextHandler
}

func (h *PersistOrderHandler) Handle(cc *CheckoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.PersistOrder")
	defer span.End()

	logger.Ctx(ctx).Info().Str("checkout", cc.CheckoutID).Msg("【Saga】=> 步骤 5: 订单落库并清空购物车...")

	order, err := domain.NewOrder(cc.NewID(), cc.StoreID, cc.Basket, cc.Charge.TransactionID, cc.Total, cc.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build order failed")
		return err
	}

	err = cc.UnitOfWork.Transaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
		for _, line := range cc.Basket.Lines {
			line.State = domain.LineAbsent
			if err := repos.Baskets().Delete(ctx, line); err != nil {
				return fmt.Errorf("clear basket line %s: %w", line.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist order failed")
		return err
	}

	cc.Order = order
	span.SetAttributes(attribute.String("order.id", order.ID))
	cc.Transition(domain.StateOrderPersisted)
	cc.Transition(domain.StateBasketCleared)

	return h.executeNext(cc)
}
