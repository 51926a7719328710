// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 设置全局日志级别和服务名，应在 main 的最开始调用。
func Init(serviceName, level string) {
	Setup(os.Stdout, serviceName, level)
}

// Setup 与 Init 相同，但允许指定输出（测试中用来捕获日志）。
func Setup(w io.Writer, serviceName, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	base = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回一个带有 trace_id / span_id 的 logger，便于在 Jaeger 与日志之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}

// L 返回不带上下文的基础 logger。
func L() *zerolog.Logger {
	l := base
	return &l
}
