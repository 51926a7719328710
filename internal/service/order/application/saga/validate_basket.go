package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// ValidateBasketHandler 读取购物车快照并执行结账策略。只读，不重新预占库存。
type ValidateBasketHandler struct {
	NextHandler
}

func (h *ValidateBasketHandler) Handle(cc *CheckoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.ValidateBasket")
	defer span.End()

	logger.Ctx(ctx).Info().Str("checkout", cc.CheckoutID).Msg("【Saga】=> 步骤 1: 校验购物车...")

	lines, err := cc.UnitOfWork.Repositories().Baskets().ListByUser(ctx, cc.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load basket failed")
		return err
	}
	// 只结算本门店的行
	own := lines[:0]
	for _, l := range lines {
		if l.StoreID == cc.StoreID {
			own = append(own, l)
		}
	}
	basket := domain.NewBasket(cc.UserID, own)
	if basket.Empty() {
		span.SetStatus(codes.Error, "empty basket")
		return domain.ErrEmptyBasket
	}
	cc.Basket = basket
	span.SetAttributes(attribute.Int("basket.lines", len(basket.Lines)), attribute.Int("basket.items", basket.ItemCount()))

	if cc.Policy != nil {
		allowed, err := cc.Policy.Allow(ctx, port.PolicyInput{
			UserID: cc.UserID,
			Total:  basket.Total(),
			Lines:  len(basket.Lines),
			Items:  basket.ItemCount(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "policy evaluation failed")
			return fmt.Errorf("evaluate checkout policy: %w", err)
		}
		if !allowed {
			span.SetStatus(codes.Error, "rejected by policy")
			return domain.ErrPolicyRejected
		}
	}

	return h.executeNext(cc)
}
