// internal/service/order/domain/state.go
package domain

// CheckoutState 定义了一次结账的生命周期状态
type CheckoutState string

const (
	StateValidating           CheckoutState = "VALIDATING"             // 校验购物车
	StateCardValidated        CheckoutState = "CARD_VALIDATED"         // 卡已通过网关校验
	StateCharged              CheckoutState = "CHARGED"                // 已扣款
	StateOrderPersisted       CheckoutState = "ORDER_PERSISTED"        // 订单已落库
	StateBasketCleared        CheckoutState = "BASKET_CLEARED"         // 购物车已清空
	StateCompleted            CheckoutState = "COMPLETED"              // 通知已投递（或已尝试）
	StateRejected             CheckoutState = "REJECTED"               // 扣款前失败，无副作用
	StateChargedButUnrecorded CheckoutState = "CHARGED_BUT_UNRECORDED" // 已扣款但订单未落库
)

// Terminal 表示结账流程已经结束。
func (s CheckoutState) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateChargedButUnrecorded
}
