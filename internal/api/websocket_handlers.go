// internal/api/websocket_handlers.go
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// BookWebSocket 订阅书籍翻译进度
func (h *Handler) BookWebSocket(c *gin.Context) {
	bookID, ok := parseID(c, "id")
	if !ok {
		http.Error(c.Writer, "invalid book id", http.StatusBadRequest)
		return
	}
	if _, err := h.BookService.GetBook(c.Request.Context(), bookID); err != nil {
		status, _ := errorStatus(err, ResourceBook)
		http.Error(c.Writer, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket 升级失败: %v", err)
		return
	}

	client := newWebSocketClient(conn, bookID)
	h.WebSocket.Register(client)

	go h.handleWebSocketWrites(client)

	client.SendMessage(map[string]interface{}{
		"type":      "connected",
		"book_id":   bookID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	// 连接时推送正在运行的任务状态
	if taskID, running := h.TranslationService.ActiveTask(bookID); running {
		if tracker, exists := h.ProgressService.GetTracker(taskID); exists {
			h.WebSocket.BroadcastBookProgress(bookID, tracker.Snapshot())
		}
	}

	h.handleWebSocketReads(client)
}

// handleWebSocketReads 读取客户端消息直到连接关闭，只处理 pong
func (h *Handler) handleWebSocketReads(client *WebSocketClient) {
	defer h.WebSocket.Unregister(client)

	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for !client.IsClosed() {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket 读取错误: %v", err)
			}
			return
		}
		client.UpdatePing()
	}
}

// handleWebSocketWrites 发送队列中的消息和心跳
func (h *Handler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.WebSocket.Unregister(client)
	}()

	for {
		select {
		case message := <-client.send:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetWebSocketStatus 获取 WebSocket 连接状态
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, h.WebSocket.GetStatus())
}
