package mq

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// 死信消息头，记录原始位置和失败原因
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
)

// MessageReader 是 *kafka.Reader 的最小抽象，消费者使用 FetchMessage + CommitMessages 手动提交。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterTopic 返回 topic 对应的死信队列名称
func DeadLetterTopic(topic string) string {
	return topic + ".dlt"
}

// PublishDeadLetter 把处理失败的消息原样转发到死信队列。writer 必须是面向死信 topic 的 Writer。
func PublishDeadLetter(ctx context.Context, writer MessageWriter, msg kafka.Message, cause error) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	carrier := KafkaHeaderCarrier(headers)
	carrier.Set(HeaderOriginalTopic, msg.Topic)
	carrier.Set(HeaderOriginalPartition, strconv.Itoa(msg.Partition))
	carrier.Set(HeaderOriginalOffset, strconv.FormatInt(msg.Offset, 10))
	if cause != nil {
		carrier.Set(HeaderExceptionMessage, cause.Error())
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: carrier})
}
