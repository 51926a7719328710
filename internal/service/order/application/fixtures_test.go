package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/testdb"
)

const testStore = "store-1"

type fakeGateway struct {
	mu           sync.Mutex
	tokenErr     error
	chargeErr    error
	chargeStatus port.ChargeStatus
	refundErr    error
	onCharge     func(ctx context.Context)

	chargeCalls int
	refundCalls int
	charged     []decimal.Decimal
	refunded    []string
}

func (g *fakeGateway) Tokenize(ctx context.Context, card port.Card) (string, error) {
	if g.tokenErr != nil {
		return "", g.tokenErr
	}
	return "tok_" + card.Number, nil
}

func (g *fakeGateway) Charge(ctx context.Context, token string, amount decimal.Decimal, customerRef string) (port.ChargeResult, error) {
	if g.onCharge != nil {
		g.onCharge(ctx)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeCalls++
	if g.chargeErr != nil {
		return port.ChargeResult{}, g.chargeErr
	}
	status := g.chargeStatus
	if status == "" {
		status = port.ChargeSucceeded
	}
	g.charged = append(g.charged, amount)
	return port.ChargeResult{TransactionID: fmt.Sprintf("ch_%d", g.chargeCalls), Status: status, Amount: amount}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, transactionID string) (port.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return port.RefundResult{}, g.refundErr
	}
	g.refunded = append(g.refunded, transactionID)
	return port.RefundResult{RefundID: "re_" + transactionID, Status: port.ChargeSucceeded}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	err    error
	orders []string
}

func (n *fakeNotifier) Enqueue(ctx context.Context, orderID, userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, orderID)
	return n.err
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) TryLock(ctx context.Context, key string) (port.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, port.ErrLockHeld
	}
	l.held[key] = true
	return memLock{l: l, key: key}, nil
}

type memLock struct {
	l   *memLocker
	key string
}

func (m memLock) Unlock(context.Context) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	delete(m.l.held, m.key)
	return nil
}

// faultyUnitOfWork 在事务中让订单写入失败，用来模拟扣款之后的存储故障
type faultyUnitOfWork struct {
	domain.UnitOfWork
	err error
}

func (u faultyUnitOfWork) Transaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return u.UnitOfWork.Transaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return fn(ctx, faultyRepositories{Repositories: repos, err: u.err})
	})
}

type faultyRepositories struct {
	domain.Repositories
	err error
}

func (r faultyRepositories) Orders() domain.OrderRepository {
	return failingOrders{OrderRepository: r.Repositories.Orders(), err: r.err}
}

type failingOrders struct {
	domain.OrderRepository
	err error
}

func (f failingOrders) Create(context.Context, *domain.Order) error { return f.err }

type testEnv struct {
	ctx       context.Context
	uow       *infrastructure.GormUnitOfWork
	metrics   *metrics.CheckoutMetrics
	inventory *InventoryService
	basket    *BasketService
	checkout  *CheckoutService
	gateway   *fakeGateway
	notifier  *fakeNotifier
	locker    *memLocker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	uow := infrastructure.NewGormUnitOfWork(testdb.New(t))
	m := metrics.NewCheckoutMetrics(prometheus.NewRegistry())
	tracer := otel.Tracer("test")
	locker := newMemLocker()
	e := &testEnv{
		ctx:       context.Background(),
		uow:       uow,
		metrics:   m,
		inventory: NewInventoryService(uow, tracer, m),
		basket:    NewBasketService(uow, locker, tracer, m),
		gateway:   &fakeGateway{},
		notifier:  &fakeNotifier{},
		locker:    locker,
	}
	e.checkout = e.newCheckout(uow, nil)
	return e
}

func (e *testEnv) newCheckout(uow domain.UnitOfWork, policy port.CheckoutPolicy) *CheckoutService {
	return NewCheckoutService(uow, e.gateway, e.notifier, e.locker, policy, otel.Tracer("test"), e.metrics, time.Second)
}

func (e *testEnv) seed(t *testing.T, productID, price string, qty int) {
	t.Helper()
	_, err := e.inventory.AddProduct(e.ctx, testStore, domain.Product{ID: productID, Name: "Product " + productID, UnitPrice: decimal.RequireFromString(price)}, qty)
	require.NoError(t, err)
}

func (e *testEnv) stockQty(t *testing.T, productID string) int {
	t.Helper()
	st, err := e.inventory.Stock(e.ctx, testStore, productID)
	require.NoError(t, err)
	return st.Quantity
}

func (e *testEnv) lines(t *testing.T, userID string) []*domain.BasketLine {
	t.Helper()
	lines, err := e.uow.Repositories().Baskets().ListByUser(e.ctx, userID)
	require.NoError(t, err)
	return lines
}

func testCard() port.Card {
	return port.Card{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123"}
}
