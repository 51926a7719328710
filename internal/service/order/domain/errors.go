// internal/service/order/domain/errors.go
package domain

import "errors"

// Kind 是错误分类，接口层据此决定返回给调用方的状态码。
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation 输入不合法，没有任何副作用
	KindValidation
	// KindConflict 资源状态冲突：缺货、行不存在、重复加购
	KindConflict
	// KindExternal 外部支付网关拒绝：卡无效、扣款失败
	KindExternal
	// KindTransient 并发冲突或锁被占用，调用方可以稍后重试
	KindTransient
	// KindFatal 已扣款但订单未落库，需要人工对账
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "resource_conflict"
	case KindExternal:
		return "external_failure"
	case KindTransient:
		return "transient_failure"
	case KindFatal:
		return "fatal_inconsistency"
	default:
		return "internal_error"
	}
}

// Error 是带分类的领域错误。哨兵错误都是 *Error，可以直接用 errors.Is 比较。
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrInvalidQuantity = newError(KindValidation, "invalid_quantity", "quantity must not be negative")
	ErrInvalidRequest  = newError(KindValidation, "invalid_request", "invalid request")
	ErrEmptyBasket     = newError(KindValidation, "empty_basket", "basket is empty")
	ErrPolicyRejected  = newError(KindValidation, "policy_rejected", "checkout rejected by policy")

	ErrOutOfStock            = newError(KindConflict, "out_of_stock", "product is out of stock")
	ErrProductNotFound       = newError(KindConflict, "product_not_found", "product is not stocked at this store")
	ErrProductAlreadyStocked = newError(KindConflict, "product_already_stocked", "product is already stocked at this store")
	ErrLineNotFound          = newError(KindConflict, "line_not_found", "basket does not contain the product")
	ErrAlreadyInBasket       = newError(KindConflict, "already_in_basket", "basket already contains the product")
	ErrOrderNotFound         = newError(KindConflict, "order_not_found", "order not found")
	ErrRecordNotFound        = newError(KindConflict, "checkout_record_not_found", "no checkout record for the transaction")
	ErrAlreadyRefunded       = newError(KindConflict, "already_refunded", "payment has already been refunded")

	ErrInvalidCard  = newError(KindExternal, "invalid_card", "card could not be validated")
	ErrChargeFailed = newError(KindExternal, "charge_failed", "payment charge failed")
	ErrRefundFailed = newError(KindExternal, "refund_failed", "payment refund failed")

	ErrConcurrentUpdate   = newError(KindTransient, "concurrent_update", "resource was modified concurrently, retry later")
	ErrCheckoutInProgress = newError(KindTransient, "checkout_in_progress", "a checkout or basket update is already in progress for this user")

	ErrChargedButUnrecorded = newError(KindFatal, "charged_but_unrecorded", "payment was charged but the order could not be recorded")
)

// KindOf 沿着错误链找到第一个领域错误并返回其分类。
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf 返回错误链中第一个领域错误的代码。
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return KindInternal.String()
}
