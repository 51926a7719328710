package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/goleak"

	"storefront/internal/service/order/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestNotificationKafkaAdapter_Enqueue(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := &fakeWriter{}
	a := NewNotificationKafkaAdapter(w, otel.Tracer("test"), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Enqueue(ctx, "order-1", "user-1"))
	// 调用方取消不影响已经投递的通知
	cancel()

	require.NoError(t, a.Close(context.Background()))
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "user-1", string(w.msgs[0].Key))

	var event domain.OrderPlaced
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "order-1", event.OrderID)
	assert.Equal(t, "user-1", event.UserID)
	assert.NotEmpty(t, event.EventID)
}

func TestNotificationKafkaAdapter_WriteFailureIsSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := &fakeWriter{err: errors.New("broker down")}
	a := NewNotificationKafkaAdapter(w, otel.Tracer("test"), time.Second)

	assert.NoError(t, a.Enqueue(context.Background(), "order-1", "user-1"))
	require.NoError(t, a.Close(context.Background()))
	assert.Empty(t, w.msgs)
}

func TestNotificationKafkaAdapter_InvalidArgs(t *testing.T) {
	a := NewNotificationKafkaAdapter(&fakeWriter{}, otel.Tracer("test"), time.Second)
	assert.ErrorIs(t, a.Enqueue(context.Background(), "", "user-1"), domain.ErrInvalidRequest)
}
