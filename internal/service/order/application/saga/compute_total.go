package saga

import (
	"go.opentelemetry.io/otel/attribute"
)

// ComputeTotalHandler 按购物车快照计算应付金额（十进制精确计算）。
type ComputeTotalHandler struct {
	NextHandler
}

func (h *ComputeTotalHandler) Handle(cc *CheckoutContext) error {
	_, span := cc.Tracer.Start(cc.Ctx, "saga.ComputeTotal")
	cc.Total = cc.Basket.Total()
	span.SetAttributes(attribute.String("checkout.total", cc.Total.StringFixed(2)))
	span.End()

	return h.executeNext(cc)
}
