package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// PolicyInput 是结账策略可以看到的购物车摘要。
type PolicyInput struct {
	UserID string
	Total  decimal.Decimal
	Lines  int
	Items  int
}

// CheckoutPolicy 在扣款之前对购物车做业务规则校验。
type CheckoutPolicy interface {
	Allow(ctx context.Context, in PolicyInput) (bool, error)
}
