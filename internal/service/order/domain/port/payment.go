package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// Card 是用户提交的支付卡信息，只在内存中短暂存在，不会被持久化。
type Card struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
	CVC      string `json:"cvc"`
	Holder   string `json:"holder,omitempty"`
}

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargePending   ChargeStatus = "pending"
	ChargeFailed    ChargeStatus = "failed"
)

// ChargeResult 是支付网关对一次扣款的应答。只有 Status == ChargeSucceeded 才算扣款成功。
type ChargeResult struct {
	TransactionID string
	Status        ChargeStatus
	Amount        decimal.Decimal
}

func (r ChargeResult) Succeeded() bool {
	return r.Status == ChargeSucceeded && r.TransactionID != ""
}

type RefundResult struct {
	RefundID string
	Status   ChargeStatus
}

func (r RefundResult) Succeeded() bool {
	return r.Status == ChargeSucceeded
}

// PaymentGateway 是外部支付网关的出站端口。
type PaymentGateway interface {
	// Tokenize 校验卡信息并换取一次性 token。卡无效时返回错误。
	Tokenize(ctx context.Context, card Card) (string, error)
	// Charge 按 token 扣款。调用方必须检查 ChargeResult.Succeeded。
	Charge(ctx context.Context, token string, amount decimal.Decimal, customerRef string) (ChargeResult, error)
	// Refund 全额退还一笔已成功的扣款。
	Refund(ctx context.Context, transactionID string) (RefundResult, error)
}
