package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/arvista/argate-backend/internal/geo"
	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

// transitionFrame JSON-кадр события перехода для WebSocket клиентов
type transitionFrame struct {
	Type       string  `json:"type"`
	TargetID   string  `json:"target_id"`
	Kind       string  `json:"kind"`
	Confidence string  `json:"confidence"`
	Info       string  `json:"info"`
	First      bool    `json:"first,omitempty"`
	At         int64   `json:"at"` // Unix миллисекунды
	Lat        float64 `json:"lat,omitempty"`
	Lon        float64 `json:"lon,omitempty"`
}

// Hub раздает события переходов подключенным WebSocket клиентам.
// Клиент получает событие, если якорь цели попадает в его зону подписки;
// события без якоря доставляются всем
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *utils.Logger
}

// NewHub создает hub рассылки
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register добавляет клиента в рассылку
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.logger.WithField("clients", count).Debug("WebSocket client registered")
}

// Unregister убирает клиента из рассылки
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WebSocketConnections.Dec()
		h.logger.WithField("clients", count).Debug("WebSocket client unregistered")
	}
}

// BroadcastTransition рассылает событие перехода клиентам по зонам
func (h *Hub) BroadcastTransition(event *models.TransitionEvent) {
	frame := transitionFrame{
		Type:       "transition",
		TargetID:   event.TargetID,
		Kind:       string(event.Kind),
		Confidence: event.Status.Confidence.String(),
		Info:       event.Status.Info.String(),
		First:      event.First,
		At:         event.At.UnixMilli(),
	}
	if event.Anchor != nil {
		frame.Lat = event.Anchor.Latitude
		frame.Lon = event.Anchor.Longitude
	}

	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to marshal transition frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if event.Anchor != nil && !client.wantsPoint(event.Anchor.Latitude, event.Anchor.Longitude) {
			continue
		}
		client.enqueue(data)
	}
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wantsPoint проверяет попадание точки в зону подписки клиента
func (c *Client) wantsPoint(lat, lon float64) bool {
	c.mu.RLock()
	zones := c.zones
	c.mu.RUnlock()

	// Клиент без зон получает все события
	if len(zones) == 0 {
		return true
	}
	return geo.Matches(zones, lat, lon)
}

// enqueue ставит кадр в очередь отправки клиенту без блокировки.
// Медленный клиент теряет кадры, а не тормозит рассылку
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
		metrics.WebSocketMessagesOut.WithLabelValues("transition").Inc()
	default:
		c.handler.logger.Warn("WebSocket client send buffer full, dropping frame")
		metrics.WebSocketErrors.Inc()
	}
}

// now отдает время кадра; выделено для единообразия сериализации
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
