// internal/api/websocket.go
package api

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Corphon/MoodboardPitch/internal/services"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketClient is one browser following a task.
type WebSocketClient struct {
	conn      *websocket.Conn
	taskID    string
	closed    int32
	done      chan struct{}
	createdAt time.Time
}

func newWebSocketClient(conn *websocket.Conn, taskID string) *WebSocketClient {
	return &WebSocketClient{
		conn:      conn,
		taskID:    taskID,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
}

// Close closes the connection once.
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		client.conn.Close()
	}
}

func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// readLoop drains client frames so pongs and close frames are processed.
// It closes the client when the peer goes away.
func (client *WebSocketClient) readLoop() {
	defer client.Close()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (client *WebSocketClient) writeJSON(v interface{}) error {
	client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return client.conn.WriteJSON(v)
}

func (client *WebSocketClient) closeWith(reason string) {
	client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

// streamProgress forwards tracker updates until the task ends or the peer leaves.
func (client *WebSocketClient) streamProgress(tracker *services.ProgressTracker) {
	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := client.writeJSON(update); err != nil {
				return
			}
			if isFinal(update) {
				client.closeWith(update.Status)
				return
			}
		case <-tracker.Done:
			final := tracker.Snapshot()
			if err := client.writeJSON(final); err == nil {
				client.closeWith(final.Status)
			}
			return
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WebSocketManager tracks open progress sockets per task.
type WebSocketManager struct {
	connections map[string]map[*WebSocketClient]struct{}
	mutex       sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
	}
}

func (manager *WebSocketManager) register(client *WebSocketClient) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.taskID] == nil {
		manager.connections[client.taskID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.taskID][client] = struct{}{}

	utils.GetLogger().Debug("🔌 Progress socket connected", map[string]interface{}{
		"task_id": client.taskID,
	})
}

func (manager *WebSocketManager) unregister(client *WebSocketClient) {
	manager.mutex.Lock()
	if clients, ok := manager.connections[client.taskID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.connections, client.taskID)
		}
	}
	manager.mutex.Unlock()

	client.Close()
}

// GetStatus reports the open sockets for the health endpoint.
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	total := 0
	for _, clients := range manager.connections {
		total += len(clients)
	}
	return map[string]interface{}{
		"tasks":       len(manager.connections),
		"connections": total,
	}
}

// Shutdown closes every socket.
func (manager *WebSocketManager) Shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for _, clients := range manager.connections {
		for client := range clients {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})
	utils.GetLogger().Info("🛑 WebSocket connections closed", nil)
}
