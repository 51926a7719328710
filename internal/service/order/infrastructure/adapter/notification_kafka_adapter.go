package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// NotificationKafkaAdapter 实现了 port.NotificationDispatcher 接口。
// 消息在后台 goroutine 中发送，Enqueue 不等待 Kafka 的确认。
type NotificationKafkaAdapter struct {
	writer  mq.MessageWriter
	tracer  trace.Tracer
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotificationKafkaAdapter 创建一个新的通知生产者适配器。timeout 限制单条消息的发送时间。
func NewNotificationKafkaAdapter(writer mq.MessageWriter, tracer trace.Tracer, timeout time.Duration) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer, tracer: tracer, timeout: timeout}
}

// Enqueue 只在消息无法构造时返回错误；发送失败只记录日志和 span。
func (a *NotificationKafkaAdapter) Enqueue(ctx context.Context, orderID, userID string) error {
	if orderID == "" || userID == "" {
		return domain.ErrInvalidRequest
	}
	event := domain.OrderPlaced{
		EventID:  uuid.New().String(),
		TraceID:  trace.SpanContextFromContext(ctx).TraceID().String(),
		OrderID:  orderID,
		UserID:   userID,
		PlacedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order placed event: %w", err)
	}

	// 与请求的生命周期解耦，但保留 trace 关联
	bg := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(bg, a.timeout)
		defer cancel()

		sendCtx, span := a.tracer.Start(sendCtx, "kafka.produce.OrderPlaced", trace.WithSpanKind(trace.SpanKindProducer))
		defer span.End()
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("order.id", orderID),
		)

		if err := mq.ProduceMessage(sendCtx, a.writer, []byte(userID), payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "produce failed")
			logger.Ctx(sendCtx).Error().Err(err).Str("order", orderID).Str("user", userID).Msg("failed to publish order notification")
			return
		}
		logger.Ctx(sendCtx).Debug().Str("order", orderID).Msg("order notification published")
	}()
	return nil
}

// Close 等待在途消息发送完毕，然后关闭底层的 writer。
func (a *NotificationKafkaAdapter) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c, ok := a.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
