package voice

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mkarlsen/voiceloop/internal/service/pipeline"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler WebSocket语音会话处理器
// Each accepted connection gets its own pipeline session; the read loop feeds
// it and the session's transmission worker writes back over the same socket.
type Handler struct {
	engines  pipeline.Engines
	opts     pipeline.Options
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(engines pipeline.Engines, opts pipeline.Options) *Handler {
	return &Handler{
		engines: engines,
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws", h.handleWebSocket)
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[voice] new connection from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newSyncConn(conn)
	session := pipeline.NewSession(ctx, h.engines, h.opts)
	session.Start()
	session.StartTransmit(out)
	defer session.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go pingLoop(ctx, out)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[voice] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			if err := session.HandleFrame(payload); err != nil {
				log.Printf("[voice] dropping malformed frame: %v", err)
			}
		case websocket.TextMessage:
			session.HandleText(string(payload))
		}

		select {
		case <-session.Done():
			// The transmission worker hit a write failure; the socket is
			// no longer worth reading.
			return
		default:
		}
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *syncConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

// syncConn serializes all writes on one mutex. The transmission worker and
// the keepalive ticker both write, and gorilla connections allow only one
// concurrent writer.
type syncConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newSyncConn(conn *websocket.Conn) *syncConn {
	return &syncConn{conn: conn}
}

func (c *syncConn) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *syncConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *syncConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
