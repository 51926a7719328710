// internal/service/order/application/inventory.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
)

// InventoryService 是库存台账的用例入口。
// 所有修改都在事务中以“加锁读取 → 领域校验 → 带版本号写回”的方式完成。
type InventoryService struct {
	uow     domain.UnitOfWork
	tracer  trace.Tracer
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

func NewInventoryService(uow domain.UnitOfWork, tracer trace.Tracer, m *metrics.CheckoutMetrics) *InventoryService {
	return &InventoryService{uow: uow, tracer: tracer, metrics: m, now: time.Now}
}

// Reserve 扣减库存。qty == 0 时直接返回。
func (s *InventoryService) Reserve(ctx context.Context, storeID, productID string, qty int) error {
	ctx, span := s.tracer.Start(ctx, "app.Inventory.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", storeID), attribute.String("product.id", productID), attribute.Int("qty", qty))

	err := withRetry(ctx, "reserve", s.metrics, func() error {
		return s.uow.Transaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			_, err := reserveStock(ctx, repos, storeID, productID, qty, s.now())
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
	}
	return err
}

// Release 归还库存。
func (s *InventoryService) Release(ctx context.Context, storeID, productID string, qty int) error {
	ctx, span := s.tracer.Start(ctx, "app.Inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", storeID), attribute.String("product.id", productID), attribute.Int("qty", qty))

	err := withRetry(ctx, "release", s.metrics, func() error {
		return s.uow.Transaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			_, err := releaseStock(ctx, repos, storeID, productID, qty, s.now())
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
	}
	return err
}

// AddProduct 在门店上架一个商品并设置初始库存。
func (s *InventoryService) AddProduct(ctx context.Context, storeID string, product domain.Product, quantity int) (*domain.StoreStock, error) {
	ctx, span := s.tracer.Start(ctx, "app.Inventory.AddProduct")
	defer span.End()

	stock, err := domain.NewStoreStock(storeID, product, quantity)
	if err != nil {
		return nil, err
	}
	stock.UpdatedAt = s.now()
	if err := s.uow.Repositories().Stocks().Create(ctx, stock); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add product failed")
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("store", storeID).Str("product", product.ID).Int("quantity", quantity).Msg("product stocked")
	return stock, nil
}

// Restock 是管理端的补货操作，语义与 Release 相同，单独记录审计日志。
func (s *InventoryService) Restock(ctx context.Context, storeID, productID string, qty int) (*domain.StoreStock, error) {
	ctx, span := s.tracer.Start(ctx, "app.Inventory.Restock")
	defer span.End()

	var stock *domain.StoreStock
	err := withRetry(ctx, "restock", s.metrics, func() error {
		return s.uow.Transaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			stock, err = releaseStock(ctx, repos, storeID, productID, qty, s.now())
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restock failed")
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("store", storeID).Str("product", productID).Int("added", qty).Int("quantity", stock.Quantity).Msg("product restocked")
	return stock, nil
}

// Stock 读取当前库存记录。
func (s *InventoryService) Stock(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	if storeID == "" || productID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.uow.Repositories().Stocks().Find(ctx, storeID, productID)
}

// reserveStock 在调用方的事务中扣减库存，返回更新后的记录（qty == 0 时为 nil）。
func reserveStock(ctx context.Context, repos domain.Repositories, storeID, productID string, qty int, now time.Time) (*domain.StoreStock, error) {
	if qty < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if qty == 0 {
		return nil, nil
	}
	stock, err := repos.Stocks().FindForUpdate(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	if err := stock.Reserve(qty); err != nil {
		return nil, fmt.Errorf("reserve %d of %s: %w", qty, productID, err)
	}
	stock.UpdatedAt = now
	if err := repos.Stocks().Update(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

func releaseStock(ctx context.Context, repos domain.Repositories, storeID, productID string, qty int, now time.Time) (*domain.StoreStock, error) {
	if qty < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	stock, err := repos.Stocks().FindForUpdate(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		return stock, nil
	}
	if err := stock.Release(qty); err != nil {
		return nil, err
	}
	stock.UpdatedAt = now
	if err := repos.Stocks().Update(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}
