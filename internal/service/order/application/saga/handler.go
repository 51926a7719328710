package saga

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// CheckoutContext 在结账责任链中传递上下文数据。
type CheckoutContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	// 输入
	CheckoutID  string
	StoreID     string
	UserID      string
	CustomerRef string
	Card        port.Card

	// 各步骤的产出
	Basket          *domain.Basket
	Token           string
	Total           decimal.Decimal
	ChargeAttempted bool
	Charge          port.ChargeResult
	Order           *domain.Order
	RefundID        string
	State           domain.CheckoutState

	// 依赖出站端口
	UnitOfWork     domain.UnitOfWork
	Payment        port.PaymentGateway
	Notifier       port.NotificationDispatcher
	Policy         port.CheckoutPolicy
	Metrics        *metrics.CheckoutMetrics
	PaymentTimeout time.Duration
	Now            func() time.Time
	NewID          func() string

	compensations []func(ctx context.Context) error
	compLock      sync.Mutex
}

// Transition 推进状态机并记录日志。
func (c *CheckoutContext) Transition(state domain.CheckoutState) {
	logger.Ctx(c.Ctx).Info().
		Str("checkout", c.CheckoutID).
		Str("user", c.UserID).
		Str("from", string(c.State)).
		Str("state", string(state)).
		Msg("checkout state changed")
	c.State = state
}

// AddCompensation 注册补偿操作，后注册的先执行。
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context) error) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context) error{comp}, c.compensations...)
}

// TriggerCompensation 依次执行所有补偿操作，返回第一个失败的错误。
// 补偿失败只能人工处理，所以这里不中断，尽量把能做的都做完。
func (c *CheckoutContext) TriggerCompensation(ctx context.Context) error {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Str("checkout", c.CheckoutID).Int("count", len(c.compensations)).Msg("executing compensation functions")

	var first error
	for _, comp := range c.compensations {
		if err := comp(ctx); err != nil && first == nil {
			first = err
		}
	}
	c.compensations = nil
	return first
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}
