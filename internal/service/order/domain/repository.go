// internal/service/order/domain/repository.go
package domain

import "context"

// StockRepository 定义了库存台账的持久化接口。
type StockRepository interface {
	// Find 读取库存记录，不存在时返回 ErrProductNotFound。
	Find(ctx context.Context, storeID, productID string) (*StoreStock, error)
	// FindForUpdate 在事务中读取并锁定库存行。
	FindForUpdate(ctx context.Context, storeID, productID string) (*StoreStock, error)
	// Create 新增库存记录，重复时返回 ErrProductAlreadyStocked。
	Create(ctx context.Context, stock *StoreStock) error
	// Update 按版本号更新数量，版本不匹配时返回 ErrConcurrentUpdate。
	Update(ctx context.Context, stock *StoreStock) error
}

// BasketRepository 定义了购物车行的持久化接口。
type BasketRepository interface {
	Find(ctx context.Context, userID, productID string) (*BasketLine, error)
	ListByUser(ctx context.Context, userID string) ([]*BasketLine, error)
	// Create 重复的 (user, product) 返回 ErrAlreadyInBasket。
	Create(ctx context.Context, line *BasketLine) error
	Update(ctx context.Context, line *BasketLine) error
	Delete(ctx context.Context, line *BasketLine) error
}

// OrderRepository 定义了订单聚合的持久化接口。
type OrderRepository interface {
	// Create 在同一次写入中保存订单和所有订单行。
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}

// CheckoutRecordRepository 保存结账记录，Save 按 ID 覆盖写。
type CheckoutRecordRepository interface {
	Save(ctx context.Context, record *CheckoutRecord) error
	ListByState(ctx context.Context, state CheckoutState) ([]*CheckoutRecord, error)
	// FindByTransaction 不存在时返回 ErrRecordNotFound。
	FindByTransaction(ctx context.Context, transactionID string) (*CheckoutRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*CheckoutRecord, error)
}

// Repositories 是一组绑定到同一个数据库会话（或事务）的仓储。
type Repositories interface {
	Stocks() StockRepository
	Baskets() BasketRepository
	Orders() OrderRepository
	CheckoutRecords() CheckoutRecordRepository
}

// UnitOfWork 负责事务边界。fn 返回错误时事务回滚。
type UnitOfWork interface {
	Repositories() Repositories
	Transaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
