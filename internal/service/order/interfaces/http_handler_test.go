package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/testdb"
)

type stubGateway struct {
	chargeErr error
}

func (g *stubGateway) Tokenize(_ context.Context, card port.Card) (string, error) {
	if card.Number == "" {
		return "", errors.New("missing card number")
	}
	return "tok_" + card.Number, nil
}

func (g *stubGateway) Charge(_ context.Context, _ string, amount decimal.Decimal, _ string) (port.ChargeResult, error) {
	if g.chargeErr != nil {
		return port.ChargeResult{}, g.chargeErr
	}
	return port.ChargeResult{TransactionID: "ch_1", Status: port.ChargeSucceeded, Amount: amount}, nil
}

func (g *stubGateway) Refund(_ context.Context, txID string) (port.RefundResult, error) {
	return port.RefundResult{RefundID: "re_" + txID, Status: port.ChargeSucceeded}, nil
}

type nopNotifier struct{}

func (nopNotifier) Enqueue(context.Context, string, string) error { return nil }

type nopLocker struct{}

func (nopLocker) TryLock(context.Context, string) (port.Lock, error) { return nopLock{}, nil }

type nopLock struct{}

func (nopLock) Unlock(context.Context) error { return nil }

type HandlerSuite struct {
	suite.Suite
	server  *httptest.Server
	gateway *stubGateway
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	uow := infrastructure.NewGormUnitOfWork(testdb.New(s.T()))
	m := metrics.NewCheckoutMetrics(prometheus.NewRegistry())
	tracer := otel.Tracer("test")
	s.gateway = &stubGateway{}

	inventory := application.NewInventoryService(uow, tracer, m)
	basket := application.NewBasketService(uow, nopLocker{}, tracer, m)
	checkout := application.NewCheckoutService(uow, s.gateway, nopNotifier{}, nopLocker{}, nil, tracer, m, time.Second)

	mux := http.NewServeMux()
	NewStorefrontHandler(inventory, basket, checkout, "store-1").RegisterRoutes(mux)
	s.server = httptest.NewServer(mux)
	s.T().Cleanup(s.server.Close)
}

func (s *HandlerSuite) do(method, path, user string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if user != "" {
		req.Header.Set(userIDHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *HandlerSuite) stock(productID, price string, qty int) {
	resp := s.do(http.MethodPost, "/stock", "", map[string]any{"productId": productID, "name": productID, "unitPrice": price, "quantity": qty})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
}

func (s *HandlerSuite) TestBasketFlow() {
	s.stock("p1", "2.50", 2)

	resp := s.do(http.MethodPost, "/basket/add", "u1", lineRequest{ProductID: "p1"})
	s.Equal(http.StatusOK, resp.StatusCode)
	line := decode[application.LineView](s.T(), resp)
	s.Equal(1, line.Quantity)

	resp = s.do(http.MethodPost, "/basket/increase", "u1", lineRequest{ProductID: "p1"})
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodPost, "/basket/increase", "u1", lineRequest{ProductID: "p1"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("out_of_stock", decode[errorBody](s.T(), resp).Error)

	resp = s.do(http.MethodGet, "/basket", "u1", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	view := decode[application.BasketView](s.T(), resp)
	s.Equal(2, view.Items)
	s.True(view.Total.Equal(decimal.NewFromInt(5)))

	resp = s.do(http.MethodPost, "/basket/remove", "u1", lineRequest{ProductID: "p1"})
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, "/stock?productId=p1", "", nil)
	s.Equal(2, decode[application.StockView](s.T(), resp).Quantity)

	resp = s.do(http.MethodGet, "/basket", "u1", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Empty(decode[application.BasketView](s.T(), resp).Lines)
}

func (s *HandlerSuite) TestErrorMapping() {
	s.stock("p1", "1.00", 1)

	resp := s.do(http.MethodPost, "/basket/add", "", lineRequest{ProductID: "p1"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPost, "/basket/add", "u1", lineRequest{ProductID: "nope"})
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodPost, "/basket/decrease", "u1", lineRequest{ProductID: "p1"})
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodPost, "/stock", "", map[string]any{"productId": "p1", "unitPrice": "1.00", "quantity": 1})
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp = s.do(http.MethodPost, "/checkout", "u1", checkoutRequest{Card: port.Card{Number: "4242"}})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](s.T(), resp)
	s.Equal("empty_basket", body.Error)

	resp = s.do(http.MethodGet, "/orders/unknown", "u1", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlerSuite) TestCheckout() {
	s.stock("p1", "3.00", 5)
	s.do(http.MethodPost, "/basket/add", "u1", lineRequest{ProductID: "p1"})

	s.gateway.chargeErr = errors.New("declined")
	resp := s.do(http.MethodPost, "/checkout", "u1", checkoutRequest{Card: port.Card{Number: "4242"}})
	s.Equal(http.StatusPaymentRequired, resp.StatusCode)
	body := decode[errorBody](s.T(), resp)
	s.Equal("charge_failed", body.Error)

	s.gateway.chargeErr = nil
	resp = s.do(http.MethodPost, "/checkout", "u1", checkoutRequest{Card: port.Card{Number: "4242"}})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	result := decode[application.CheckoutResult](s.T(), resp)
	s.Equal(domain.StateCompleted, result.State)
	s.True(result.Total.Equal(decimal.NewFromInt(3)))

	resp = s.do(http.MethodGet, "/orders/"+result.OrderID, "u1", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	order := decode[application.OrderView](s.T(), resp)
	s.Equal("ch_1", order.TransactionID)

	resp = s.do(http.MethodGet, "/orders/"+result.OrderID, "u2", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	s.Equal(application.OrderPaid, order.Status)

	resp = s.do(http.MethodPost, "/refund", "", refundRequest{TransactionID: "ch_1"})
	s.Equal(http.StatusOK, resp.StatusCode)
	refund := decode[application.RefundResponse](s.T(), resp)
	s.Equal("re_ch_1", refund.RefundID)
	s.Equal(result.OrderID, refund.OrderID)

	resp = s.do(http.MethodGet, "/orders", "u1", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	orders := decode[[]application.OrderView](s.T(), resp)
	s.Require().Len(orders, 1)
	s.Equal(application.OrderRefunded, orders[0].Status)
	s.Equal("re_ch_1", orders[0].RefundID)

	resp = s.do(http.MethodPost, "/refund", "", refundRequest{TransactionID: "ch_1"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("already_refunded", decode[errorBody](s.T(), resp).Error)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidQuantity, http.StatusBadRequest},
		{domain.ErrOutOfStock, http.StatusConflict},
		{domain.ErrProductNotFound, http.StatusNotFound},
		{domain.ErrChargeFailed, http.StatusPaymentRequired},
		{domain.ErrCheckoutInProgress, http.StatusServiceUnavailable},
		{domain.ErrChargedButUnrecorded, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteError_Fatal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErrorWith(context.Background(), rec, domain.ErrChargedButUnrecorded, map[string]string{"state": "CHARGED_BUT_UNRECORDED"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, fatalInconsistency, body.Error)
	assert.NotNil(t, body.Result)
}

func TestWriteError_TransientSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(context.Background(), rec, domain.ErrCheckoutInProgress)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
