package infrastructure

import (
	"context"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/order/domain"
)

// isDuplicateKey 判断是否违反了唯一索引。
// 开启 TranslateError 后 gorm 会返回 gorm.ErrDuplicatedKey，这里再兜底识别驱动原始错误。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GormStockRepository 是 StockRepository 的 GORM 实现
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

func (r *GormStockRepository) Find(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	return r.find(r.db.WithContext(ctx), storeID, productID)
}

// FindForUpdate 在 MySQL 上使用 SELECT ... FOR UPDATE 锁定库存行
func (r *GormStockRepository) FindForUpdate(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), storeID, productID)
}

func (r *GormStockRepository) find(db *gorm.DB, storeID, productID string) (*domain.StoreStock, error) {
	var model StoreStockModel
	err := db.Where("store_id = ? AND product_id = ?", storeID, productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrap(err, "find store stock")
	}
	return ToDomainStock(&model), nil
}

func (r *GormStockRepository) Create(ctx context.Context, stock *domain.StoreStock) error {
	model := FromDomainStock(stock)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrProductAlreadyStocked
		}
		return errors.Wrap(err, "create store stock")
	}
	stock.ID = model.ID
	stock.Version = model.Version
	return nil
}

// Update 只有版本号匹配时才会写入，写入成功后版本号 +1
func (r *GormStockRepository) Update(ctx context.Context, stock *domain.StoreStock) error {
	res := r.db.WithContext(ctx).Model(&StoreStockModel{}).
		Where("id = ? AND version = ?", stock.ID, stock.Version).
		Updates(map[string]interface{}{
			"quantity":   stock.Quantity,
			"version":    gorm.Expr("version + 1"),
			"updated_at": stock.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update store stock")
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	stock.Version++
	return nil
}

// GormBasketRepository 是 BasketRepository 的 GORM 实现
type GormBasketRepository struct {
	db *gorm.DB
}

func NewGormBasketRepository(db *gorm.DB) *GormBasketRepository {
	return &GormBasketRepository{db: db}
}

func (r *GormBasketRepository) Find(ctx context.Context, userID, productID string) (*domain.BasketLine, error) {
	var model BasketLineModel
	err := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLineNotFound
		}
		return nil, errors.Wrap(err, "find basket line")
	}
	return ToDomainBasketLine(&model), nil
}

func (r *GormBasketRepository) ListByUser(ctx context.Context, userID string) ([]*domain.BasketLine, error) {
	var models []BasketLineModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list basket lines")
	}
	lines := make([]*domain.BasketLine, 0, len(models))
	for i := range models {
		lines = append(lines, ToDomainBasketLine(&models[i]))
	}
	return lines, nil
}

func (r *GormBasketRepository) Create(ctx context.Context, line *domain.BasketLine) error {
	model := FromDomainBasketLine(line)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrAlreadyInBasket
		}
		return errors.Wrap(err, "create basket line")
	}
	line.ID = model.ID
	return nil
}

func (r *GormBasketRepository) Update(ctx context.Context, line *domain.BasketLine) error {
	if line.State != domain.LineActive {
		return errors.Errorf("cannot update basket line %d in state %d", line.ID, line.State)
	}
	res := r.db.WithContext(ctx).Model(&BasketLineModel{}).
		Where("id = ? AND version = ?", line.ID, line.Version).
		Updates(map[string]interface{}{
			"quantity":   line.Quantity,
			"version":    gorm.Expr("version + 1"),
			"updated_at": line.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update basket line")
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	line.Version++
	return nil
}

// Delete 只删除处于 LineAbsent 状态的行，并且要求版本号未变
func (r *GormBasketRepository) Delete(ctx context.Context, line *domain.BasketLine) error {
	if line.State != domain.LineAbsent {
		return errors.Errorf("cannot delete active basket line %d", line.ID)
	}
	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", line.ID, line.Version).
		Delete(&BasketLineModel{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete basket line")
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 订单行作为关联一起插入
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := r.db.WithContext(ctx).Create(FromDomainOrder(order)).Error; err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return ToDomainOrder(&model), nil
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders, nil
}

type GormCheckoutRecordRepository struct {
	db *gorm.DB
}

func NewGormCheckoutRecordRepository(db *gorm.DB) *GormCheckoutRecordRepository {
	return &GormCheckoutRecordRepository{db: db}
}

func (r *GormCheckoutRecordRepository) Save(ctx context.Context, record *domain.CheckoutRecord) error {
	if err := r.db.WithContext(ctx).Save(FromDomainCheckoutRecord(record)).Error; err != nil {
		return errors.Wrap(err, "save checkout record")
	}
	return nil
}

func (r *GormCheckoutRecordRepository) ListByState(ctx context.Context, state domain.CheckoutState) ([]*domain.CheckoutRecord, error) {
	return r.list(ctx, "state = ?", string(state))
}

func (r *GormCheckoutRecordRepository) ListByUser(ctx context.Context, userID string) ([]*domain.CheckoutRecord, error) {
	return r.list(ctx, "user_id = ?", userID)
}

func (r *GormCheckoutRecordRepository) FindByTransaction(ctx context.Context, transactionID string) (*domain.CheckoutRecord, error) {
	var model CheckoutRecordModel
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("created_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "find checkout record")
	}
	return ToDomainCheckoutRecord(&model), nil
}

func (r *GormCheckoutRecordRepository) list(ctx context.Context, query string, arg any) ([]*domain.CheckoutRecord, error) {
	var models []CheckoutRecordModel
	if err := r.db.WithContext(ctx).Where(query, arg).Order("created_at").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list checkout records")
	}
	records := make([]*domain.CheckoutRecord, 0, len(models))
	for i := range models {
		records = append(records, ToDomainCheckoutRecord(&models[i]))
	}
	return records, nil
}
