package application

import (
	"context"
	"errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
)

// withRetry 执行 fn，遇到乐观锁冲突时整体重试一次（重新读取并重新校验），
// 第二次仍然冲突则原样返回 ErrConcurrentUpdate。其他错误不重试。
func withRetry(ctx context.Context, op string, m *metrics.CheckoutMetrics, fn func() error) error {
	err := fn()
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		return err
	}
	m.Conflicts.Inc()
	logger.Ctx(ctx).Warn().Str("op", op).Msg("optimistic concurrency conflict, retrying once")

	err = fn()
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		m.Conflicts.Inc()
	}
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.CodeOf(err)
}
