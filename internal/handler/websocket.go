package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/arvista/argate-backend/internal/geo"
	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/internal/repository"
	"github.com/arvista/argate-backend/pkg/utils"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 256
)

// WebSocketHandler обрабатывает WebSocket подключения клиентов
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	hub        *Hub
	repository repository.Repository
	logger     *utils.Logger
}

// Client одно WebSocket соединение
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	handler *WebSocketHandler

	center models.GeoPoint
	radius float64
	zones  []string
	mu     sync.RWMutex
}

// NewWebSocketHandler создает WebSocket handler
func NewWebSocketHandler(hub *Hub, repo repository.Repository, logger *utils.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hub:        hub,
		repository: repo,
		logger:     logger,
	}
}

// HandleWebSocket принимает подключение. Параметры lat/lon/radius задают
// регион интереса; без них клиент получает события всех целей
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	var center models.GeoPoint
	var radius float64

	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	radiusStr := c.Query("radius")
	hasRegion := latStr != "" || lonStr != "" || radiusStr != ""

	if hasRegion {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil || lat < -90 || lat > 90 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid latitude"})
			return
		}

		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil || lon < -180 || lon > 180 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid longitude"})
			return
		}

		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius <= 0 || radius > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius (1-200 km)"})
			return
		}

		center = models.GeoPoint{Latitude: lat, Longitude: lon}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		handler: h,
		center:  center,
		radius:  radius,
	}

	if hasRegion {
		client.zones = geo.Cover(center.Latitude, center.Longitude, radius, 0)
	}

	h.logger.WithFields(map[string]interface{}{
		"client_ip": c.ClientIP(),
		"region":    hasRegion,
		"zones":     len(client.zones),
	}).Info("WebSocket client connected")

	h.hub.Register(client)

	go client.writePump()
	go client.readPump()

	client.sendWelcome()
	client.sendSnapshot()
}

// sendWelcome отправляет приветственный кадр с зонами подписки
func (c *Client) sendWelcome() {
	frame := map[string]interface{}{
		"type":        "welcome",
		"server_time": nowMillis(),
		"zones":       c.zones,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		c.handler.logger.WithField("error", err).Error("Failed to marshal welcome frame")
		return
	}

	select {
	case c.send <- data:
		metrics.WebSocketMessagesOut.WithLabelValues("welcome").Inc()
	case <-time.After(5 * time.Second):
		c.handler.logger.Warn("Welcome frame send timeout")
	}
}

// sendSnapshot отправляет текущее состояние целей региона, чтобы клиент
// не ждал первого перехода для отрисовки сцены
func (c *Client) sendSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var targets []*models.Target
	var err error

	c.mu.RLock()
	center, radius := c.center, c.radius
	c.mu.RUnlock()

	if radius > 0 {
		targets, err = c.handler.repository.GetTargetsInRadius(ctx, center, radius)
	} else {
		targets, err = c.handler.repository.GetAllTargets(ctx)
	}
	if err != nil {
		c.handler.logger.WithField("error", err).Error("Failed to load snapshot for client")
		return
	}

	frame := map[string]interface{}{
		"type":        "snapshot",
		"server_time": nowMillis(),
		"targets":     targetsToJSON(targets),
	}

	data, err := json.Marshal(frame)
	if err != nil {
		c.handler.logger.WithField("error", err).Error("Failed to marshal snapshot frame")
		return
	}
	c.enqueue(data)
}

// readPump читает входящие кадры клиента до закрытия соединения
func (c *Client) readPump() {
	defer func() {
		c.handler.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.handler.logger.WithField("error", err).Error("WebSocket read error")
			}
			return
		}

		c.handleMessage(message)
	}
}

// writePump пишет кадры из очереди и шлет периодический ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.WebSocketErrors.Inc()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketErrors.Inc()
				return
			}
		}
	}
}

// clientRequest входящий кадр от клиента
type clientRequest struct {
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius float64 `json:"radius"`
}

// handleMessage обрабатывает кадр клиента: смену региона или ping
func (c *Client) handleMessage(message []byte) {
	var req clientRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.handler.logger.WithField("error", err).Debug("Invalid client frame")
		return
	}

	switch req.Type {
	case "subscribe":
		if req.Radius <= 0 || req.Radius > 200 {
			return
		}
		zones := geo.Cover(req.Lat, req.Lon, req.Radius, 0)

		c.mu.Lock()
		c.center = models.GeoPoint{Latitude: req.Lat, Longitude: req.Lon}
		c.radius = req.Radius
		c.zones = zones
		c.mu.Unlock()

		ack, _ := json.Marshal(map[string]interface{}{
			"type":  "subscribed",
			"zones": zones,
		})
		c.enqueue(ack)

	case "ping":
		pong, _ := json.Marshal(map[string]interface{}{
			"type":        "pong",
			"server_time": nowMillis(),
		})
		c.enqueue(pong)

	default:
		c.handler.logger.WithField("type", req.Type).Debug("Unknown client frame type")
	}
}
