// internal/service/order/application/checkout.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// CheckoutService 只关注结账流程的编排，具体步骤在 saga 责任链中。
type CheckoutService struct {
	uow            domain.UnitOfWork
	payment        port.PaymentGateway
	notifier       port.NotificationDispatcher
	locker         port.Locker
	policy         port.CheckoutPolicy
	tracer         trace.Tracer
	metrics        *metrics.CheckoutMetrics
	paymentTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// NewCheckoutService policy 可以为 nil，表示不做额外的策略校验。
func NewCheckoutService(uow domain.UnitOfWork, payment port.PaymentGateway, notifier port.NotificationDispatcher, locker port.Locker, policy port.CheckoutPolicy, tracer trace.Tracer, m *metrics.CheckoutMetrics, paymentTimeout time.Duration) *CheckoutService {
	return &CheckoutService{
		uow: uow, payment: payment, notifier: notifier,
		locker: locker, policy: policy, tracer: tracer,
		metrics: m, paymentTimeout: paymentTimeout,
		now: time.Now, newID: func() string { return uuid.New().String() },
	}
}

// Checkout 把用户的购物车转换为已支付的订单。
// 返回的 CheckoutResult 在失败时同样有效，State 表明流程终止在哪个状态。
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.Checkout")
	defer span.End()

	if req == nil || req.StoreID == "" || req.UserID == "" {
		return nil, domain.ErrInvalidRequest
	}
	checkoutID := s.newID()
	span.SetAttributes(
		attribute.String("checkout.id", checkoutID),
		attribute.String("user.id", req.UserID),
		attribute.String("store.id", req.StoreID),
	)
	started := s.now()

	// 0. 同一用户同一时刻只允许一个结账流程，避免重复扣款；购物车写操作也会被挡在锁外
	lock, err := acquireUserLock(ctx, s.locker, req.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout lock failed")
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("user", req.UserID).Msg("failed to release checkout lock")
		}
	}()

	cc := &saga.CheckoutContext{
		Ctx:            ctx,
		Tracer:         s.tracer,
		CheckoutID:     checkoutID,
		StoreID:        req.StoreID,
		UserID:         req.UserID,
		CustomerRef:    req.CustomerRef,
		Card:           req.Card,
		State:          domain.StateValidating,
		UnitOfWork:     s.uow,
		Payment:        s.payment,
		Notifier:       s.notifier,
		Policy:         s.policy,
		Metrics:        s.metrics,
		PaymentTimeout: s.paymentTimeout,
		Now:            s.now,
		NewID:          s.newID,
	}

	logger.Ctx(ctx).Info().Str("checkout", checkoutID).Str("user", req.UserID).Str("store", req.StoreID).Msg("starting checkout")

	chainErr := s.buildChain().Handle(cc)
	if chainErr != nil {
		chainErr = s.handleFailure(cc, chainErr)
		span.RecordError(chainErr)
		span.SetStatus(codes.Error, "checkout failed in chain")
	}

	if cc.ChargeAttempted {
		s.recordCheckout(cc, chainErr)
	}
	s.metrics.Checkouts.WithLabelValues(string(cc.State)).Inc()
	s.metrics.Duration.Observe(s.now().Sub(started).Seconds())

	result := &CheckoutResult{
		CheckoutID:    checkoutID,
		TransactionID: cc.Charge.TransactionID,
		Total:         cc.Total,
		State:         cc.State,
	}
	if cc.Order != nil {
		result.OrderID = cc.Order.ID
	}
	if chainErr != nil {
		return result, chainErr
	}

	logger.Ctx(ctx).Info().Str("checkout", checkoutID).Str("order", result.OrderID).Str("total", result.Total.StringFixed(2)).Msg("checkout completed")
	return result, nil
}

// handleFailure 决定失败的终态。扣款之前失败没有任何副作用；
// 扣款之后失败意味着钱已经扣了但订单没有落库，必须大声报告并尝试退款。
func (s *CheckoutService) handleFailure(cc *saga.CheckoutContext, err error) error {
	ctx := cc.Ctx
	if cc.State != domain.StateCharged {
		cc.Transition(domain.StateRejected)
		logger.Ctx(ctx).Info().Err(err).Str("checkout", cc.CheckoutID).Str("user", cc.UserID).Msg("checkout rejected")
		return err
	}

	cc.Transition(domain.StateChargedButUnrecorded)
	s.metrics.Fatal.Inc()
	logger.Ctx(ctx).Error().Err(err).
		Bool("fatal_inconsistency", true).
		Str("checkout", cc.CheckoutID).
		Str("user", cc.UserID).
		Str("transaction", cc.Charge.TransactionID).
		Str("amount", cc.Total.StringFixed(2)).
		Msg("payment charged but order could not be recorded, triggering refund")

	if compErr := cc.TriggerCompensation(ctx); compErr != nil {
		logger.Ctx(ctx).Error().Err(compErr).
			Bool("fatal_inconsistency", true).
			Str("checkout", cc.CheckoutID).
			Str("transaction", cc.Charge.TransactionID).
			Msg("compensation failed, manual reconciliation required")
	}
	return fmt.Errorf("%w: %v", domain.ErrChargedButUnrecorded, err)
}

// recordCheckout 在订单事务之外保存结账记录，作为对账依据。
func (s *CheckoutService) recordCheckout(cc *saga.CheckoutContext, chainErr error) {
	record := &domain.CheckoutRecord{
		ID:            cc.CheckoutID,
		StoreID:       cc.StoreID,
		UserID:        cc.UserID,
		TransactionID: cc.Charge.TransactionID,
		Amount:        cc.Total,
		State:         cc.State,
		RefundID:      cc.RefundID,
		CreatedAt:     s.now(),
	}
	if cc.Order != nil {
		record.OrderID = cc.Order.ID
	}
	if chainErr != nil {
		record.Error = chainErr.Error()
	}
	if err := s.uow.Repositories().CheckoutRecords().Save(cc.Ctx, record); err != nil {
		evt := logger.Ctx(cc.Ctx).Warn()
		if cc.State == domain.StateChargedButUnrecorded {
			evt = logger.Ctx(cc.Ctx).Error().Bool("fatal_inconsistency", true)
		}
		evt.Err(err).
			Str("checkout", cc.CheckoutID).
			Str("transaction", cc.Charge.TransactionID).
			Str("state", string(cc.State)).
			Msg("failed to save checkout record")
	}
}

// Refund 全额退还一笔扣款，并把退款号记到对应的结账记录上。
// 找不到结账记录的交易（例如历史数据）仍然允许退款，只记录告警。
func (s *CheckoutService) Refund(ctx context.Context, transactionID string) (*RefundResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.transaction_id", transactionID))

	if transactionID == "" {
		return nil, domain.ErrInvalidRequest
	}
	records := s.uow.Repositories().CheckoutRecords()
	record, err := records.FindByTransaction(ctx, transactionID)
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		record = nil
	case err != nil:
		return nil, err
	case record.RefundID != "":
		return nil, domain.ErrAlreadyRefunded
	}

	refundCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	res, err := s.payment.Refund(refundCtx, transactionID)
	if err == nil && !res.Succeeded() {
		err = fmt.Errorf("status %s", res.Status)
	}
	if err != nil {
		s.metrics.Refunds.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrRefundFailed, err)
	}
	s.metrics.Refunds.WithLabelValues("succeeded").Inc()
	resp := &RefundResponse{TransactionID: transactionID, RefundID: res.RefundID}

	if record == nil {
		logger.Ctx(ctx).Warn().Str("transaction", transactionID).Str("refund", res.RefundID).Msg("payment refunded without a checkout record")
		return resp, nil
	}
	resp.OrderID = record.OrderID
	span.SetAttributes(attribute.String("order.id", record.OrderID))
	record.RefundID = res.RefundID
	if err := records.Save(context.WithoutCancel(ctx), record); err != nil {
		// 钱已经退了，记录写不进去只能靠日志对账
		logger.Ctx(ctx).Error().Err(err).
			Str("transaction", transactionID).
			Str("refund", res.RefundID).
			Str("order", record.OrderID).
			Msg("payment refunded but checkout record could not be updated")
		return resp, nil
	}
	logger.Ctx(ctx).Info().Str("transaction", transactionID).Str("refund", res.RefundID).Str("order", record.OrderID).Msg("payment refunded")
	return resp, nil
}

// GetOrder 按订单号读取订单，只有订单的所有者可以读取。
func (s *CheckoutService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" || orderID == "" {
		return nil, domain.ErrInvalidRequest
	}
	order, err := s.uow.Repositories().Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *CheckoutService) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.uow.Repositories().Orders().ListByUser(ctx, userID)
}

// OrderView 返回带退款状态的订单视图。
func (s *CheckoutService) OrderView(ctx context.Context, userID, orderID string) (*OrderView, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refundsByOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := ToOrderView(order)
	view.markRefunded(refunds[order.ID])
	return view, nil
}

// OrderViews 返回用户的全部订单及其退款状态。
func (s *CheckoutService) OrderViews(ctx context.Context, userID string) ([]*OrderView, error) {
	orders, err := s.ListOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refundsByOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		view := ToOrderView(o)
		view.markRefunded(refunds[o.ID])
		views = append(views, view)
	}
	return views, nil
}

// refundsByOrder orderID -> refundID
func (s *CheckoutService) refundsByOrder(ctx context.Context, userID string) (map[string]string, error) {
	records, err := s.uow.Repositories().CheckoutRecords().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	refunds := make(map[string]string)
	for _, r := range records {
		if r.OrderID != "" && r.RefundID != "" {
			refunds[r.OrderID] = r.RefundID
		}
	}
	return refunds, nil
}

// PendingReconciliation 列出已扣款但订单未落库的结账记录，供人工对账。
func (s *CheckoutService) PendingReconciliation(ctx context.Context) ([]*domain.CheckoutRecord, error) {
	return s.uow.Repositories().CheckoutRecords().ListByState(ctx, domain.StateChargedButUnrecorded)
}

// userLockKey 是结账与购物车写操作共用的用户锁
func userLockKey(userID string) string {
	return "checkout:" + userID
}

func acquireUserLock(ctx context.Context, locker port.Locker, userID string) (port.Lock, error) {
	lock, err := locker.TryLock(ctx, userLockKey(userID))
	if errors.Is(err, port.ErrLockHeld) {
		return nil, domain.ErrCheckoutInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire user lock: %w", err)
	}
	return lock, nil
}

func (s *CheckoutService) buildChain() saga.Handler {
	chain := new(saga.ValidateBasketHandler)
	chain.
		SetNext(new(saga.ValidateCardHandler)).
		SetNext(new(saga.ComputeTotalHandler)).
		SetNext(new(saga.ChargeHandler)).
		SetNext(new(saga.PersistOrderHandler)).
		SetNext(new(saga.NotificationHandler))
	return chain
}
