package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

const fatalInconsistency = "fatal_inconsistency"

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrLineNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternal:
		return http.StatusPaymentRequired
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	writeErrorWith(ctx, w, err, nil)
}

// writeErrorWith result 不为 nil 时一起返回，例如结账失败时的终态
func writeErrorWith(ctx context.Context, w http.ResponseWriter, err error, result any) {
	status := statusFor(err)
	body := errorBody{Error: domain.CodeOf(err), Message: err.Error()}
	if result != nil {
		body.Result = result
	}

	span := trace.SpanFromContext(ctx)
	switch domain.KindOf(err) {
	case domain.KindFatal:
		body.Error = fatalInconsistency
		span.RecordError(err)
		span.SetStatus(codes.Error, fatalInconsistency)
	case domain.KindInternal:
		// 内部错误不把细节暴露给调用方
		body.Message = http.StatusText(status)
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
	case domain.KindTransient:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
