package infrastructure

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/service/order/domain"
)

// gormRepositories 把一组仓储绑定到同一个 *gorm.DB（可能是事务）
type gormRepositories struct {
	stocks  *GormStockRepository
	baskets *GormBasketRepository
	orders  *GormOrderRepository
	records *GormCheckoutRecordRepository
}

func newGormRepositories(db *gorm.DB) *gormRepositories {
	return &gormRepositories{
		stocks:  NewGormStockRepository(db),
		baskets: NewGormBasketRepository(db),
		orders:  NewGormOrderRepository(db),
		records: NewGormCheckoutRecordRepository(db),
	}
}

func (r *gormRepositories) Stocks() domain.StockRepository                   { return r.stocks }
func (r *gormRepositories) Baskets() domain.BasketRepository                 { return r.baskets }
func (r *gormRepositories) Orders() domain.OrderRepository                   { return r.orders }
func (r *gormRepositories) CheckoutRecords() domain.CheckoutRecordRepository { return r.records }

// GormUnitOfWork 是 domain.UnitOfWork 的 GORM 实现
type GormUnitOfWork struct {
	db    *gorm.DB
	repos *gormRepositories
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db, repos: newGormRepositories(db)}
}

// Repositories 返回事务之外的仓储，用于只读查询
func (u *GormUnitOfWork) Repositories() domain.Repositories {
	return u.repos
}

// Transaction fn 返回错误时回滚，错误原样返回给调用方
func (u *GormUnitOfWork) Transaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newGormRepositories(tx))
	})
}
