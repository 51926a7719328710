package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

var errMalformedEvent = errors.New("malformed order placed event")

// Sender 抽象了向在线用户推送消息的能力
type Sender interface {
	SendToUser(ctx context.Context, userID string, payload []byte) int
}

// Message 是推送给浏览器的通知
type Message struct {
	Type     string    `json:"type"`
	OrderID  string    `json:"orderId"`
	PlacedAt time.Time `json:"placedAt"`
	Text     string    `json:"text"`
}

// Consumer 消费下单事件并推送给用户。消息处理完（或转入死信）后才提交 offset。
type Consumer struct {
	reader     mq.MessageReader
	deadLetter mq.MessageWriter
	sender     Sender
	tracer     trace.Tracer
	backoff    time.Duration
}

// NewConsumer deadLetter 为 nil 时，无法解析的消息只记录日志。
func NewConsumer(reader mq.MessageReader, deadLetter mq.MessageWriter, sender Sender, tracer trace.Tracer) *Consumer {
	return &Consumer{reader: reader, deadLetter: deadLetter, sender: sender, tracer: tracer, backoff: time.Second}
}

// Run 阻塞直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("notification consumer started")
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完再手动提交
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("notification consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		if err := c.handle(msgCtx, msg); err != nil {
			// 死信写不进去就不提交，退出后下一次从这条消息重新消费
			if !c.deadLetterWithRetry(msgCtx, ctx, msg, err) {
				logger.Ctx(ctx).Warn().Int64("offset", msg.Offset).Msg("notification consumer stopped before message was dead-lettered, leaving it uncommitted")
				return nil
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := c.tracer.Start(ctx, "notification.HandleOrderPlaced",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		))
	defer span.End()

	var event domain.OrderPlaced
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		err = fmt.Errorf("%w: %v", errMalformedEvent, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmarshal failed")
		return err
	}
	if event.OrderID == "" || event.UserID == "" {
		span.SetStatus(codes.Error, "missing ids")
		return fmt.Errorf("%w: missing order or user id", errMalformedEvent)
	}
	span.SetAttributes(attribute.String("order.id", event.OrderID), attribute.String("user.id", event.UserID))

	payload, err := json.Marshal(Message{
		Type:     "order_placed",
		OrderID:  event.OrderID,
		PlacedAt: event.PlacedAt,
		Text:     fmt.Sprintf("Your order %s has been placed.", event.OrderID),
	})
	if err != nil {
		return err
	}

	// 用户不在线不是错误：推送是尽力而为的
	delivered := c.sender.SendToUser(ctx, event.UserID, payload)
	span.SetAttributes(attribute.Int("notification.delivered", delivered))
	logger.Ctx(ctx).Info().Str("order", event.OrderID).Str("user", event.UserID).Int("connections", delivered).Msg("order confirmation pushed")
	return nil
}

// deadLetterWithRetry 重试写入死信直到成功，runCtx 被取消时返回 false。
// 后面的消息提交会覆盖这条消息的 offset，所以不能跳过它继续消费。
func (c *Consumer) deadLetterWithRetry(msgCtx, runCtx context.Context, msg kafka.Message, cause error) bool {
	for {
		err := c.toDeadLetter(msgCtx, msg, cause)
		if err == nil {
			return true
		}
		logger.Ctx(msgCtx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to publish dead letter, retrying")
		select {
		case <-runCtx.Done():
			return false
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) toDeadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	log := logger.Ctx(ctx).Error().Err(cause).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset)
	if c.deadLetter == nil {
		log.Msg("dropping unprocessable message")
		return nil
	}
	if err := mq.PublishDeadLetter(ctx, c.deadLetter, msg, cause); err != nil {
		return err
	}
	log.Msg("message moved to dead letter topic")
	return nil
}
