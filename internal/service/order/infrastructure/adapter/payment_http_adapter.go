package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/order/domain/port"
)

const (
	tokensPath  = "/v1/tokens"
	chargesPath = "/v1/charges"
	refundsPath = "/v1/refunds"
)

// PaymentHTTPAdapter 是 port.PaymentGateway 接口的 HTTP 实现。
type PaymentHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// NewPaymentHTTPAdapter 创建一个新的支付网关适配器实例。
func NewPaymentHTTPAdapter(client *httpclient.Client, baseURL, apiKey string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type chargeRequest struct {
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Customer string `json:"customer,omitempty"`
}

type chargeResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

type refundRequest struct {
	Charge string `json:"charge"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (a *PaymentHTTPAdapter) headers(extra map[string]string) map[string]string {
	h := map[string]string{}
	if a.apiKey != "" {
		h["Authorization"] = "Bearer " + a.apiKey
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// Tokenize 网关以 4xx 拒绝的卡视为无效卡。
func (a *PaymentHTTPAdapter) Tokenize(ctx context.Context, card port.Card) (string, error) {
	var resp tokenResponse
	if err := a.client.PostJSON(ctx, a.baseURL+tokensPath, a.headers(nil), card, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			return "", fmt.Errorf("card rejected by gateway: %s", statusErr.Body)
		}
		return "", fmt.Errorf("tokenize card: %w", err)
	}
	if resp.Token == "" {
		return "", errors.New("gateway returned an empty token")
	}
	return resp.Token, nil
}

// Charge 使用 token 派生的幂等键，同一个 token 重试不会重复扣款。
func (a *PaymentHTTPAdapter) Charge(ctx context.Context, token string, amount decimal.Decimal, customerRef string) (port.ChargeResult, error) {
	req := chargeRequest{Token: token, Amount: amount.StringFixed(2), Customer: customerRef}
	var resp chargeResponse
	headers := a.headers(map[string]string{"Idempotency-Key": "charge-" + token})
	if err := a.client.PostJSON(ctx, a.baseURL+chargesPath, headers, req, &resp); err != nil {
		return port.ChargeResult{}, fmt.Errorf("charge: %w", err)
	}
	return port.ChargeResult{
		TransactionID: resp.ID,
		Status:        port.ChargeStatus(resp.Status),
		Amount:        resp.Amount,
	}, nil
}

func (a *PaymentHTTPAdapter) Refund(ctx context.Context, transactionID string) (port.RefundResult, error) {
	var resp refundResponse
	headers := a.headers(map[string]string{"Idempotency-Key": "refund-" + transactionID})
	if err := a.client.PostJSON(ctx, a.baseURL+refundsPath, headers, refundRequest{Charge: transactionID}, &resp); err != nil {
		return port.RefundResult{}, fmt.Errorf("refund: %w", err)
	}
	return port.RefundResult{RefundID: resp.ID, Status: port.ChargeStatus(resp.Status)}, nil
}
