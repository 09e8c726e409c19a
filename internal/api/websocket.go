// internal/api/websocket.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/ScriptStudioMCP/internal/state"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 浏览器工具面向本地/内网部署，放开来源检查
		return true
	},
}

// WebSocketClient 一个已连接的状态订阅者
type WebSocketClient struct {
	SessionID string
	Conn      *websocket.Conn
	Events    chan state.ChangeEvent

	mu     sync.Mutex
	closed bool
}

// Close 关闭连接（幂等）
func (client *WebSocketClient) Close() {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.closed {
		return
	}
	client.closed = true
	client.Conn.Close()
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.closed
}

// writeJSON 带写超时的JSON发送
func (client *WebSocketClient) writeJSON(v interface{}) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.closed {
		return websocket.ErrCloseSent
	}
	client.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return client.Conn.WriteJSON(v)
}

// ServeStoreEvents 升级连接并把会话存储的变更事件推送给客户端，
// 连接存续期间订阅该存储，断开时注销订阅。
func ServeStoreEvents(c *gin.Context, sessionID string, store *state.Store) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().WithFields(map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		}).Warn("WebSocket升级失败")
		return
	}

	client := &WebSocketClient{
		SessionID: sessionID,
		Conn:      conn,
		Events:    store.Subscribe(),
	}

	utils.GetLogger().WithField("session_id", sessionID).Info("WebSocket客户端已连接")

	// 连接时先推当前版本，避免客户端错过订阅前的变更
	client.writeJSON(map[string]interface{}{
		"type":    "hello",
		"version": store.Version(),
		"flags":   store.Snapshot().Flags(),
	})

	go client.writeLoop()
	client.readLoop(store)
}

// writeLoop 转发状态变更事件并维持心跳
func (client *WebSocketClient) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				client.Close()
				return
			}
			if err := client.writeJSON(map[string]interface{}{
				"type":  "state_changed",
				"event": event,
			}); err != nil {
				client.Close()
				return
			}

		case <-ticker.C:
			client.mu.Lock()
			if client.closed {
				client.mu.Unlock()
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := client.Conn.WriteMessage(websocket.PingMessage, nil)
			client.mu.Unlock()
			if err != nil {
				client.Close()
				return
			}
		}
	}
}

// readLoop 消费客户端消息直到断开（客户端不发送命令，只维持连接）
func (client *WebSocketClient) readLoop(store *state.Store) {
	defer func() {
		store.Unsubscribe(client.Events)
		client.Close()
		utils.GetLogger().WithField("session_id", client.SessionID).Info("WebSocket客户端已断开")
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
