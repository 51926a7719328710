package notification

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

// DeadLetterLogger 监听死信队列并以结构化日志记录每条消息，便于告警和人工排查。
type DeadLetterLogger struct {
	reader  mq.MessageReader
	backoff time.Duration
}

func NewDeadLetterLogger(reader mq.MessageReader) *DeadLetterLogger {
	return &DeadLetterLogger{reader: reader, backoff: time.Second}
}

func (d *DeadLetterLogger) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("dead letter consumer started")
	for {
		msg, err := d.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("dead letter consumer shutting down")
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.backoff):
			}
			continue
		}

		logDeadLetter(mq.ExtractTraceContext(ctx, msg.Headers), msg)

		// 死信消息记录日志即视为处理完成
		if err := d.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit dead letter")
		}
	}
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", carrier.Get(mq.HeaderOriginalTopic)).
		Str("original_partition", carrier.Get(mq.HeaderOriginalPartition)).
		Str("original_offset", carrier.Get(mq.HeaderOriginalOffset)).
		Str("exception_message", carrier.Get(mq.HeaderExceptionMessage)).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("dead letter message received")
}
