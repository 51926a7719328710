package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoreStockModel 对应数据库中的 store_stock 表，(store_id, product_id) 唯一
type StoreStockModel struct {
	ID          uint            `gorm:"primaryKey"`
	StoreID     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_store_product"`
	ProductID   string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_store_product"`
	ProductName string          `gorm:"type:varchar(255)"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity    int             `gorm:"not null;check:quantity >= 0"`
	Version     int             `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StoreStockModel) TableName() string {
	return "store_stock"
}

// BasketLineModel 对应 basket_line 表。行被删除就是真正的删除，不使用软删除，
// 否则唯一索引会挡住同一商品的再次加购。
type BasketLineModel struct {
	ID        uint            `gorm:"primaryKey"`
	StoreID   string          `gorm:"type:varchar(64);not null;index"`
	UserID    string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_product"`
	ProductID string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_product"`
	Quantity  int             `gorm:"not null;check:quantity > 0"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Version   int             `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BasketLineModel) TableName() string {
	return "basket_line"
}

// OrderModel 对应 orders 表
type OrderModel struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey"`
	StoreID              string          `gorm:"type:varchar(64);not null"`
	UserID               string          `gorm:"type:varchar(64);not null;index"`
	PaymentTransactionID string          `gorm:"type:varchar(128);not null;uniqueIndex"`
	Total                decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt            time.Time
	// 关联关系
	Lines []OrderLineModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

type OrderLineModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"type:varchar(36);not null;index"`
	ProductID string          `gorm:"type:varchar(64);not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (OrderLineModel) TableName() string {
	return "order_line"
}

// CheckoutRecordModel 对应 checkout_record 表，用于对账
type CheckoutRecordModel struct {
	ID            string          `gorm:"type:varchar(36);primaryKey"`
	StoreID       string          `gorm:"type:varchar(64);not null"`
	UserID        string          `gorm:"type:varchar(64);not null;index"`
	OrderID       string          `gorm:"type:varchar(36)"`
	TransactionID string          `gorm:"type:varchar(128);index"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	State         string          `gorm:"type:varchar(32);not null;index"`
	RefundID      string          `gorm:"type:varchar(128)"`
	Error         string          `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (CheckoutRecordModel) TableName() string {
	return "checkout_record"
}

// AllModels 返回需要自动迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&StoreStockModel{},
		&BasketLineModel{},
		&OrderModel{},
		&OrderLineModel{},
		&CheckoutRecordModel{},
	}
}
