package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?userId=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestHub_DeliversToAllUserConnections(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(ServeWS(hub)))
	defer server.Close()

	a := dial(t, server, "u1")
	defer a.Close()
	b := dial(t, server, "u1")
	defer b.Close()
	other := dial(t, server, "u2")
	defer other.Close()

	require.Eventually(t, func() bool { return hub.Connections("u1") == 2 }, time.Second, 5*time.Millisecond)

	delivered := hub.SendToUser(context.Background(), "u1", []byte(`{"orderId":"o1"}`))
	assert.Equal(t, 2, delivered)
	assert.Zero(t, hub.SendToUser(context.Background(), "nobody", []byte("x")))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"orderId":"o1"}`, string(data))
	}

	// 客户端断开后连接被注销
	require.NoError(t, other.Close())
	require.Eventually(t, func() bool { return hub.Connections("u2") == 0 }, time.Second, 5*time.Millisecond)

	hub.Close()
	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
	}
	assert.Zero(t, hub.Connections("u1"))
}

func TestServeWS_RequiresUser(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	ServeWS(hub)(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_RejectsAfterClose(t *testing.T) {
	hub := NewHub()
	hub.Close()
	assert.False(t, hub.Register(newClient("u1", nil)))
}
