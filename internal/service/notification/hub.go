package notification

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"storefront/internal/pkg/logger"
)

// 每个连接的发送缓冲，写满后丢弃新消息，慢客户端不会拖住消费者
const clientBufferSize = 16

// Client 代表一个 WebSocket 连接。一个用户可以同时有多个连接（多个标签页、多台设备）。
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte

	once sync.Once
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{userID: userID, conn: conn, send: make(chan []byte, clientBufferSize)}
}

// close 只能由 Hub 在持有锁时调用，保证不会向已关闭的 channel 发送
func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub 维护所有活跃的连接，按 UserID 分组推送。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Register 把连接加入 Hub。Hub 已关闭时返回 false。
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	c.close()
}

// SendToUser 非阻塞地推送给用户的所有连接，返回成功放入缓冲的连接数。
func (h *Hub) SendToUser(ctx context.Context, userID string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			logger.Ctx(ctx).Warn().Str("user", userID).Msg("client send buffer full, dropping notification")
		}
	}
	return delivered
}

// Connections 返回用户当前的连接数
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close 关闭所有连接的发送队列，写协程随之发送 Close 帧并退出。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			c.close()
		}
		delete(h.clients, userID)
	}
}
