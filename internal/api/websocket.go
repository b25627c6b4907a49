// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示订阅某本书进度的一个连接
type WebSocketClient struct {
	conn      WebSocketConnection
	bookID    int64
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
	lastPing  atomic.Int64
	createdAt time.Time
}

// newWebSocketClient 创建客户端
func newWebSocketClient(conn WebSocketConnection, bookID int64) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		bookID:    bookID,
		send:      make(chan []byte, 64),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// SendMessage 非阻塞地发送消息，队列满时丢弃
func (client *WebSocketClient) SendMessage(message interface{}) error {
	if client.IsClosed() {
		return nil
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	select {
	case client.send <- msgBytes:
	default:
		log.Printf("⚠️ 书籍 %d 的 WebSocket 消息队列已满，消息被丢弃", client.bookID)
	}
	return nil
}

// WebSocketManager 按书籍管理 WebSocket 连接
type WebSocketManager struct {
	connections map[int64]map[*WebSocketClient]struct{}
	mutex       sync.RWMutex
	pingTimeout time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWebSocketManager 创建管理器并启动定期清理
func NewWebSocketManager() *WebSocketManager {
	manager := &WebSocketManager{
		connections: make(map[int64]map[*WebSocketClient]struct{}),
		pingTimeout: 90 * time.Second,
		stopChan:    make(chan struct{}),
	}
	go manager.run()
	return manager
}

// run 定期清理过期连接
func (manager *WebSocketManager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			manager.cleanupExpiredConnections()
		case <-manager.stopChan:
			return
		}
	}
}

// Register 注册客户端
func (manager *WebSocketManager) Register(client *WebSocketClient) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.bookID] == nil {
		manager.connections[client.bookID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.bookID][client] = struct{}{}
	log.Printf("✅ WebSocket 客户端已订阅书籍 %d", client.bookID)
}

// Unregister 注销并关闭客户端
func (manager *WebSocketManager) Unregister(client *WebSocketClient) {
	manager.mutex.Lock()
	if clients, exists := manager.connections[client.bookID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.connections, client.bookID)
		}
	}
	manager.mutex.Unlock()

	client.Close()
}

// cleanupExpiredConnections 清理过期和已关闭的连接
func (manager *WebSocketManager) cleanupExpiredConnections() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	removed := 0
	for bookID, clients := range manager.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(clients, client)
				client.Close()
				removed++
			}
		}
		if len(clients) == 0 {
			delete(manager.connections, bookID)
		}
	}
	return removed
}

// BroadcastBookProgress 向订阅该书的所有连接推送进度
func (manager *WebSocketManager) BroadcastBookProgress(bookID int64, update services.ProgressUpdate) {
	msgBytes, err := json.Marshal(map[string]interface{}{
		"type":      "progress",
		"book_id":   bookID,
		"task_id":   update.TaskID,
		"progress":  update.Progress,
		"message":   update.Message,
		"status":    update.Status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("❌ 序列化进度消息失败: %v", err)
		return
	}

	manager.mutex.RLock()
	clients := make([]*WebSocketClient, 0, len(manager.connections[bookID]))
	for client := range manager.connections[bookID] {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- msgBytes:
		default:
			// 队列满的连接直接关闭
			go manager.Unregister(client)
		}
	}
}

// ClientCount 返回订阅某本书的连接数
func (manager *WebSocketManager) ClientCount(bookID int64) int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.connections[bookID])
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	books := make(map[int64]int, len(manager.connections))
	total := 0
	for bookID, clients := range manager.connections {
		books[bookID] = len(clients)
		total += len(clients)
	}
	return map[string]interface{}{
		"total_books":       len(manager.connections),
		"total_connections": total,
		"books":             books,
	}
}

// Shutdown 关闭所有连接并停止清理
func (manager *WebSocketManager) Shutdown() {
	manager.stopOnce.Do(func() {
		close(manager.stopChan)

		manager.mutex.Lock()
		defer manager.mutex.Unlock()
		for _, clients := range manager.connections {
			for client := range clients {
				client.Close()
			}
		}
		manager.connections = make(map[int64]map[*WebSocketClient]struct{})
		log.Println("✅ WebSocket 管理器已关闭")
	})
}
