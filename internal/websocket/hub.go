// Package websocket 开发服务器的更新推送：按对局分组广播 game_updated 提示。
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 对局ID到客户端的映射
	gameClients map[uint]map[string]*Client
	gameMu      sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// 日志
	logger *zap.Logger
}

// Message WebSocket消息
type Message struct {
	Type      string `json:"type"` // 消息类型
	GameID    uint   `json:"game_id,omitempty"`
	Revision  int64  `json:"revision"`
	Timestamp int64  `json:"timestamp"` // 时间戳
}

// MessageType 消息类型
const (
	MessageTypeConnected   = "connected"
	MessageTypeGameUpdated = "game_updated"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:     make(map[string]*Client),
		gameClients: make(map[uint]map[string]*Client),
		broadcast:   make(chan *Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run 运行Hub，ctx 结束时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// shutdown 关闭全部客户端的发送通道
func (h *Hub) shutdown() {
	close(h.done)

	h.clientsMu.Lock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.clientsMu.Unlock()

	h.gameMu.Lock()
	h.gameClients = make(map[uint]map[string]*Client)
	h.gameMu.Unlock()

	h.logger.Info("WebSocket Hub 已停止")
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.gameMu.Lock()
	room, ok := h.gameClients[client.GameID]
	if !ok {
		room = make(map[string]*Client)
		h.gameClients[client.GameID] = room
	}
	room[client.ID] = client
	h.gameMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.Uint("game_id", client.GameID),
		zap.String("username", client.Username))

	// 发送连接成功消息
	h.SendToClient(client.ID, &Message{
		Type:      MessageTypeConnected,
		GameID:    client.GameID,
		Timestamp: time.Now().Unix(),
	})
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.gameMu.Lock()
	if room, ok := h.gameClients[client.GameID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.gameClients, client.GameID)
		}
	}
	h.gameMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.Uint("game_id", client.GameID))
}

// broadcastMessage 发送给对局内的全部客户端
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.gameMu.RLock()
	defer h.gameMu.RUnlock()

	for _, client := range h.gameClients[message.GameID] {
		select {
		case client.Send <- data:
		default:
			// 提示可以丢弃，客户端仍会轮询
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.Uint("game_id", message.GameID))
		}
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// NotifyGame 通知对局有新修订
func (h *Hub) NotifyGame(gameID uint, revision int64) {
	msg := &Message{
		Type:      MessageTypeGameUpdated,
		GameID:    gameID,
		Revision:  revision,
		Timestamp: time.Now().Unix(),
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("广播队列已满，丢弃更新提示",
			zap.Uint("game_id", gameID),
			zap.Int64("revision", revision))
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// GameClientCount 获取对局的订阅连接数
func (h *Hub) GameClientCount(gameID uint) int {
	h.gameMu.RLock()
	defer h.gameMu.RUnlock()
	return len(h.gameClients[gameID])
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Conn.Close()
	}
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
