package infrastructure

import (
	"storefront/internal/service/order/domain"
)

// ToDomainStock 将数据库模型转换为领域模型
func ToDomainStock(m *StoreStockModel) *domain.StoreStock {
	if m == nil {
		return nil
	}
	return &domain.StoreStock{
		ID:      m.ID,
		StoreID: m.StoreID,
		Product: domain.Product{
			ID:        m.ProductID,
			Name:      m.ProductName,
			UnitPrice: m.UnitPrice,
		},
		Quantity:  m.Quantity,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainStock 将领域模型转换为数据库模型 (用于插入)
func FromDomainStock(s *domain.StoreStock) *StoreStockModel {
	if s == nil {
		return nil
	}
	return &StoreStockModel{
		ID:          s.ID,
		StoreID:     s.StoreID,
		ProductID:   s.Product.ID,
		ProductName: s.Product.Name,
		UnitPrice:   s.Product.UnitPrice,
		Quantity:    s.Quantity,
		Version:     s.Version,
		UpdatedAt:   s.UpdatedAt,
	}
}

// ToDomainBasketLine 从数据库读出的行总是 LineActive
func ToDomainBasketLine(m *BasketLineModel) *domain.BasketLine {
	if m == nil {
		return nil
	}
	return &domain.BasketLine{
		ID:        m.ID,
		StoreID:   m.StoreID,
		UserID:    m.UserID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
		Version:   m.Version,
		State:     domain.LineActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func FromDomainBasketLine(l *domain.BasketLine) *BasketLineModel {
	if l == nil {
		return nil
	}
	return &BasketLineModel{
		ID:        l.ID,
		StoreID:   l.StoreID,
		UserID:    l.UserID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		Version:   l.Version,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func ToDomainOrder(m *OrderModel) *domain.Order {
	if m == nil {
		return nil
	}
	order := &domain.Order{
		ID:                   m.ID,
		StoreID:              m.StoreID,
		UserID:               m.UserID,
		PaymentTransactionID: m.PaymentTransactionID,
		Total:                m.Total,
		CreatedAt:            m.CreatedAt,
		Lines:                make([]domain.OrderLine, 0, len(m.Lines)),
	}
	for _, l := range m.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			OrderID:   l.OrderID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return order
}

func FromDomainOrder(o *domain.Order) *OrderModel {
	if o == nil {
		return nil
	}
	m := &OrderModel{
		ID:                   o.ID,
		StoreID:              o.StoreID,
		UserID:               o.UserID,
		PaymentTransactionID: o.PaymentTransactionID,
		Total:                o.Total,
		CreatedAt:            o.CreatedAt,
		Lines:                make([]OrderLineModel, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		m.Lines = append(m.Lines, OrderLineModel{
			OrderID:   o.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return m
}

func FromDomainCheckoutRecord(r *domain.CheckoutRecord) *CheckoutRecordModel {
	if r == nil {
		return nil
	}
	return &CheckoutRecordModel{
		ID:            r.ID,
		StoreID:       r.StoreID,
		UserID:        r.UserID,
		OrderID:       r.OrderID,
		TransactionID: r.TransactionID,
		Amount:        r.Amount,
		State:         string(r.State),
		RefundID:      r.RefundID,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt,
	}
}

func ToDomainCheckoutRecord(m *CheckoutRecordModel) *domain.CheckoutRecord {
	if m == nil {
		return nil
	}
	return &domain.CheckoutRecord{
		ID:            m.ID,
		StoreID:       m.StoreID,
		UserID:        m.UserID,
		OrderID:       m.OrderID,
		TransactionID: m.TransactionID,
		Amount:        m.Amount,
		State:         domain.CheckoutState(m.State),
		RefundID:      m.RefundID,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
