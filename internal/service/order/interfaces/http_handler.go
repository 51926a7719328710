package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

const (
	serviceName  = "order-service"
	userIDHeader = "X-User-ID"
)

// StorefrontHandler 封装了购物车、库存、结账的 HTTP 处理器
type StorefrontHandler struct {
	inventory    *application.InventoryService
	basket       *application.BasketService
	checkout     *application.CheckoutService
	defaultStore string
	tracer       trace.Tracer
}

// NewStorefrontHandler defaultStore 在请求没有携带 storeId 时使用。
func NewStorefrontHandler(inventory *application.InventoryService, basket *application.BasketService, checkout *application.CheckoutService, defaultStore string) *StorefrontHandler {
	return &StorefrontHandler{
		inventory:    inventory,
		basket:       basket,
		checkout:     checkout,
		defaultStore: defaultStore,
		tracer:       otel.Tracer(serviceName),
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。/healthz 与 /metrics 由 bootstrap 统一挂载。
func (h *StorefrontHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /basket/add", h.traced("http.Basket.Add", h.basketOp(h.basket.AddLine)))
	mux.HandleFunc("POST /basket/increase", h.traced("http.Basket.Increase", h.basketOp(h.basket.IncreaseLine)))
	mux.HandleFunc("POST /basket/decrease", h.traced("http.Basket.Decrease", h.basketOp(h.basket.DecreaseLine)))
	mux.HandleFunc("POST /basket/remove", h.traced("http.Basket.Remove", h.removeLineHandler))
	mux.HandleFunc("GET /basket", h.traced("http.Basket.Get", h.getBasketHandler))

	mux.HandleFunc("POST /checkout", h.traced("http.Checkout", h.checkoutHandler))
	mux.HandleFunc("POST /refund", h.traced("http.Refund", h.refundHandler))
	mux.HandleFunc("GET /orders", h.traced("http.Orders.List", h.listOrdersHandler))
	mux.HandleFunc("GET /orders/{id}", h.traced("http.Orders.Get", h.getOrderHandler))
	mux.HandleFunc("GET /reconciliation", h.traced("http.Reconciliation", h.reconciliationHandler))

	mux.HandleFunc("POST /stock", h.traced("http.Stock.Add", h.addProductHandler))
	mux.HandleFunc("POST /stock/restock", h.traced("http.Stock.Restock", h.restockHandler))
	mux.HandleFunc("GET /stock", h.traced("http.Stock.Get", h.getStockHandler))
}

type ctxHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request)

// traced 从请求头中提取上游的 trace 上下文并开启一个服务端 span
func (h *StorefrontHandler) traced(name string, fn ctxHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := h.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(attribute.String("http.method", r.Method), attribute.String("http.route", r.URL.Path))
		fn(ctx, w, r)
	}
}

type lineRequest struct {
	ProductID string `json:"productId"`
}

func (h *StorefrontHandler) basketOp(op func(ctx context.Context, storeID, userID, productID string) (*domain.BasketLine, error)) ctxHandler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		userID, ok := h.requireUser(ctx, w, r)
		if !ok {
			return
		}
		var req lineRequest
		if !decodeBody(ctx, w, r, &req) {
			return
		}
		line, err := op(ctx, h.storeID(r), userID, req.ProductID)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, application.ToLineView(line))
	}
}

func (h *StorefrontHandler) removeLineHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(ctx, w, r)
	if !ok {
		return
	}
	var req lineRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if err := h.basket.RemoveLine(ctx, h.storeID(r), userID, req.ProductID); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StorefrontHandler) getBasketHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(ctx, w, r)
	if !ok {
		return
	}
	basket, err := h.basket.Basket(ctx, userID)
	if errors.Is(err, domain.ErrEmptyBasket) {
		basket, err = domain.NewBasket(userID, nil), nil
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToBasketView(basket))
}

type checkoutRequest struct {
	CustomerRef string    `json:"customerRef"`
	Card        port.Card `json:"card"`
}

func (h *StorefrontHandler) checkoutHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(ctx, w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	customerRef := req.CustomerRef
	if customerRef == "" {
		customerRef = userID
	}

	result, err := h.checkout.Checkout(ctx, &application.CheckoutRequest{
		StoreID:     h.storeID(r),
		UserID:      userID,
		CustomerRef: customerRef,
		Card:        req.Card,
	})
	if err != nil {
		if result == nil {
			writeError(ctx, w, err)
			return
		}
		writeErrorWith(ctx, w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type refundRequest struct {
	TransactionID string `json:"transactionId"`
}

func (h *StorefrontHandler) refundHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	resp, err := h.checkout.Refund(ctx, req.TransactionID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StorefrontHandler) listOrdersHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(ctx, w, r)
	if !ok {
		return
	}
	views, err := h.checkout.OrderViews(ctx, userID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *StorefrontHandler) getOrderHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(ctx, w, r)
	if !ok {
		return
	}
	view, err := h.checkout.OrderView(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *StorefrontHandler) reconciliationHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	records, err := h.checkout.PendingReconciliation(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type addProductRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

func (h *StorefrontHandler) addProductHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	product := domain.Product{ID: req.ProductID, Name: req.Name, UnitPrice: req.UnitPrice}
	stock, err := h.inventory.AddProduct(ctx, h.storeID(r), product, req.Quantity)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.ToStockView(stock))
}

type restockRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *StorefrontHandler) restockHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	stock, err := h.inventory.Restock(ctx, h.storeID(r), req.ProductID, req.Quantity)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToStockView(stock))
}

func (h *StorefrontHandler) getStockHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	stock, err := h.inventory.Stock(ctx, h.storeID(r), r.URL.Query().Get("productId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToStockView(stock))
}

func (h *StorefrontHandler) storeID(r *http.Request) string {
	if id := r.URL.Query().Get("storeId"); id != "" {
		return id
	}
	return h.defaultStore
}

// requireUser 用户身份由网关在 X-User-ID 头中注入，兼容 userId 查询参数
func (h *StorefrontHandler) requireUser(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		writeError(ctx, w, domain.ErrInvalidRequest)
		return "", false
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", userID))
	return userID, true
}

func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Ctx(ctx).Debug().Err(err).Msg("invalid request body")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: domain.ErrInvalidRequest.Code, Message: "Invalid request body"})
		return false
	}
	return true
}
