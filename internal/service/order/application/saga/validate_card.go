package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// ValidateCardHandler 通过支付网关把卡信息换成 token。
type ValidateCardHandler struct {
	NextHandler
}

func (h *ValidateCardHandler) Handle(cc *CheckoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.ValidateCard")
	defer span.End()

	logger.Ctx(ctx).Info().Str("checkout", cc.CheckoutID).Msg("【Saga】=> 步骤 2: 校验支付卡...")

	tokenCtx, cancel := context.WithTimeout(ctx, cc.PaymentTimeout)
	defer cancel()

	token, err := cc.Payment.Tokenize(tokenCtx, cc.Card)
	if err != nil || token == "" {
		if err == nil {
			err = fmt.Errorf("empty token")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "card validation failed")
		return fmt.Errorf("%w: %v", domain.ErrInvalidCard, err)
	}
	cc.Token = token
	cc.Transition(domain.StateCardValidated)

	return h.executeNext(cc)
}
