// internal/service/order/application/basket.go
package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// BasketService 管理用户购物车。每个写操作都在一个事务里同时修改购物车行和库存，
// 所以“行存在”与“库存已预占”总是一起成立或一起不成立。
// 写操作与结账共用同一把用户锁，结账进行中购物车不可修改。
type BasketService struct {
	uow     domain.UnitOfWork
	locker  port.Locker
	tracer  trace.Tracer
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

func NewBasketService(uow domain.UnitOfWork, locker port.Locker, tracer trace.Tracer, m *metrics.CheckoutMetrics) *BasketService {
	return &BasketService{uow: uow, locker: locker, tracer: tracer, metrics: m, now: time.Now}
}

// AddLine 把商品加入购物车（数量 1）并预占 1 个库存。
func (s *BasketService) AddLine(ctx context.Context, storeID, userID, productID string) (*domain.BasketLine, error) {
	var line *domain.BasketLine
	err := s.mutate(ctx, "add", storeID, userID, productID, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Baskets().Find(ctx, userID, productID)
		switch {
		case err == nil:
			return domain.ErrAlreadyInBasket
		case !errors.Is(err, domain.ErrLineNotFound):
			return err
		}

		stock, err := reserveStock(ctx, repos, storeID, productID, 1, s.now())
		if err != nil {
			return err
		}
		line = domain.NewBasketLine(storeID, userID, stock.Product, s.now())
		// 并发加购由唯一索引兜底，仓储会把它翻译成 ErrAlreadyInBasket，事务回滚后库存也随之恢复
		return repos.Baskets().Create(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// IncreaseLine 数量 +1，并预占 1 个库存。库存不足时数量不变。
func (s *BasketService) IncreaseLine(ctx context.Context, storeID, userID, productID string) (*domain.BasketLine, error) {
	var line *domain.BasketLine
	err := s.mutate(ctx, "increase", storeID, userID, productID, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if line, err = findOwnedLine(ctx, repos, storeID, userID, productID); err != nil {
			return err
		}
		if _, err := reserveStock(ctx, repos, storeID, productID, 1, s.now()); err != nil {
			return err
		}
		if err := line.Increase(s.now()); err != nil {
			return err
		}
		return repos.Baskets().Update(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// DecreaseLine 数量 -1 并归还 1 个库存。数量到 0 时行被删除，返回的行处于 LineAbsent 状态。
func (s *BasketService) DecreaseLine(ctx context.Context, storeID, userID, productID string) (*domain.BasketLine, error) {
	var line *domain.BasketLine
	err := s.mutate(ctx, "decrease", storeID, userID, productID, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if line, err = findOwnedLine(ctx, repos, storeID, userID, productID); err != nil {
			return err
		}
		if _, err := releaseStock(ctx, repos, storeID, productID, 1, s.now()); err != nil {
			return err
		}
		if err := line.Decrease(s.now()); err != nil {
			return err
		}
		if line.State == domain.LineAbsent {
			return repos.Baskets().Delete(ctx, line)
		}
		return repos.Baskets().Update(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// RemoveLine 删除整行并归还全部预占的库存。
func (s *BasketService) RemoveLine(ctx context.Context, storeID, userID, productID string) error {
	return s.mutate(ctx, "remove", storeID, userID, productID, func(ctx context.Context, repos domain.Repositories) error {
		line, err := findOwnedLine(ctx, repos, storeID, userID, productID)
		if err != nil {
			return err
		}
		qty, err := line.Remove(s.now())
		if err != nil {
			return err
		}
		if _, err := releaseStock(ctx, repos, storeID, productID, qty, s.now()); err != nil {
			return err
		}
		return repos.Baskets().Delete(ctx, line)
	})
}

// ListLines 返回用户购物车中的所有行，没有任何行时返回 ErrEmptyBasket。
func (s *BasketService) ListLines(ctx context.Context, userID string) ([]*domain.BasketLine, error) {
	if userID == "" {
		return nil, domain.ErrInvalidRequest
	}
	lines, err := s.uow.Repositories().Baskets().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyBasket
	}
	return lines, nil
}

// Basket 返回用户购物车的快照。
func (s *BasketService) Basket(ctx context.Context, userID string) (*domain.Basket, error) {
	lines, err := s.ListLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.NewBasket(userID, lines), nil
}

func (s *BasketService) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	basket, err := s.Basket(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return basket.Total(), nil
}

func (s *BasketService) ProductIDs(ctx context.Context, userID string) ([]string, error) {
	basket, err := s.Basket(ctx, userID)
	if err != nil {
		return nil, err
	}
	return basket.ProductIDs(), nil
}

// mutate 是所有写操作的公共外壳：参数校验、用户锁、span、事务、一次乐观锁重试、指标。
func (s *BasketService) mutate(ctx context.Context, op, storeID, userID, productID string, fn func(ctx context.Context, repos domain.Repositories) error) error {
	ctx, span := s.tracer.Start(ctx, "app.Basket."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("store.id", storeID),
		attribute.String("user.id", userID),
		attribute.String("product.id", productID),
	)

	var err error
	if storeID == "" || userID == "" || productID == "" {
		err = domain.ErrInvalidRequest
	} else {
		err = s.withUserLock(ctx, userID, func() error {
			return withRetry(ctx, op, s.metrics, func() error {
				return s.uow.Transaction(ctx, fn)
			})
		})
	}
	s.metrics.BasketOps.WithLabelValues(op, resultLabel(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "basket "+op+" failed")
		logger.Ctx(ctx).Info().Err(err).Str("op", op).Str("user", userID).Str("product", productID).Msg("basket operation rejected")
		return err
	}
	logger.Ctx(ctx).Debug().Str("op", op).Str("user", userID).Str("product", productID).Msg("basket updated")
	return nil
}

// withUserLock 持有用户锁执行 fn。锁被占用说明结账或另一个购物车写操作正在进行。
func (s *BasketService) withUserLock(ctx context.Context, userID string, fn func() error) error {
	lock, err := acquireUserLock(ctx, s.locker, userID)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("user", userID).Msg("failed to release basket lock")
		}
	}()
	return fn()
}

// findOwnedLine 读取用户在该门店下的购物车行，门店不一致视为行不存在。
func findOwnedLine(ctx context.Context, repos domain.Repositories, storeID, userID, productID string) (*domain.BasketLine, error) {
	line, err := repos.Baskets().Find(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if line.StoreID != storeID {
		return nil, domain.ErrLineNotFound
	}
	return line, nil
}
