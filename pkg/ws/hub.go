package ws

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/metrics"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeInit          = "init"           // 初始化数据（车辆列表+编码进度）
	MsgTypeViewUpdate    = "view_update"    // 视图结果更新
	MsgTypeSessionState  = "session_state"  // 视图会话状态变化
	MsgTypeGeocodeStatus = "geocode_status" // 逆地理编码进度
	MsgTypeError         = "error"          // 错误消息

	msgTypeSubscribe   = "subscribe"
	msgTypeUnsubscribe = "unsubscribe"
)

// Message WebSocket 消息结构，VIN 为空表示全局消息
type Message struct {
	Type string `json:"type"`
	VIN  string `json:"vin,omitempty"`
	Data any    `json:"data"`
}

// InitData 初始化数据
type InitData struct {
	Vehicles      any `json:"vehicles"`
	GeocodeStatus any `json:"geocode_status"`
}

// Client WebSocket 客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	vins map[string]bool
}

type envelope struct {
	vin  string
	data []byte
}

// Hub WebSocket 连接管理中心
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// 初始数据提供者回调
	getInitData func() *InitData
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetInitDataProvider 设置初始数据提供者
func (h *Hub) SetInitDataProvider(provider func() *InitData) {
	h.getInitData = provider
}

// Run 运行 Hub，ctx 取消时退出
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(total))
			h.logger.Info("WebSocket client connected", zap.Int("total_clients", total))

			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(total))
			h.logger.Info("WebSocket client disconnected", zap.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.vin) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// 慢消费者，关闭连接
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendInitData 发送初始数据给新连接的客户端
func (h *Hub) sendInitData(client *Client) {
	if h.getInitData == nil {
		return
	}

	initData := h.getInitData()
	if initData == nil {
		h.logger.Warn("Init data provider returned nil")
		return
	}

	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: initData})
	if err != nil {
		h.logger.Error("Failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
		h.logger.Debug("Sent init data to client")
	default:
		h.logger.Warn("Failed to send init data, client buffer full")
	}
}

// BroadcastMessage 广播全局消息给所有客户端
func (h *Hub) BroadcastMessage(msgType string, data any) {
	h.publish("", msgType, data)
}

// BroadcastToVehicle 发送车辆消息，只有订阅了该车辆或未订阅任何车辆的客户端会收到
func (h *Hub) BroadcastToVehicle(vin, msgType string, data any) {
	h.publish(vin, msgType, data)
}

func (h *Hub) publish(vin, msgType string, data any) {
	jsonData, err := json.Marshal(Message{Type: msgType, VIN: vin, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- envelope{vin: vin, data: jsonData}:
	default:
		h.logger.Warn("Broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		vins: make(map[string]bool),
	}
}

// Register 注册客户端
func (c *Client) Register() {
	c.hub.register <- c
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	c.hub.unregister <- c
}

// Subscribe 订阅车辆
func (c *Client) Subscribe(vin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vins[vin] = true
}

// Unsubscribe 取消订阅车辆
func (c *Client) Unsubscribe(vin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vins, vin)
}

func (c *Client) wants(vin string) bool {
	if vin == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vins) == 0 || c.vins[vin]
}

type clientMessage struct {
	Type string `json:"type"`
	VIN  string `json:"vin"`
}

// handle 处理客户端发来的订阅消息
func (c *Client) handle(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.VIN == "" {
		return
	}
	switch msg.Type {
	case msgTypeSubscribe:
		c.Subscribe(msg.VIN)
	case msgTypeUnsubscribe:
		c.Unsubscribe(msg.VIN)
	}
}

// ReadPump 读取订阅消息并保持连接活跃
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handle(message)
	}
}

// WritePump 发送消息
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
