package notification

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

func TestDeadLetterLogger_LogsAndCommits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var buf bytes.Buffer
	logger.Setup(&buf, "test", "info")
	t.Cleanup(func() { logger.Setup(os.Stdout, "test", "info") })

	dlt := &recordingWriter{}
	orig := kafka.Message{Topic: "order-notifications", Partition: 0, Offset: 7, Value: []byte("garbage")}
	require.NoError(t, mq.PublishDeadLetter(context.Background(), dlt, orig, errors.New("bad payload")))

	reader := newChanReader()
	reader.msgs <- dlt.written()[0]

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewDeadLetterLogger(reader).Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	out := buf.String()
	assert.Contains(t, out, `"original_offset":"7"`)
	assert.Contains(t, out, `"exception_message":"bad payload"`)
}
