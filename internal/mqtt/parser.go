package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

// StatusMessage разобранное сообщение о статусе трекинга цели
type StatusMessage struct {
	TargetID  string
	Name      string
	Anchor    *models.GeoPoint
	Status    models.TargetStatus
	Destroyed bool
}

// statusPayload JSON-схема сообщения от подсистемы трекинга.
// Поля confidence и info передаются строками из фиксированных словарей
type statusPayload struct {
	Confidence string  `json:"confidence"`
	Info       string  `json:"info,omitempty"`
	Timestamp  int64   `json:"ts,omitempty"` // Unix миллисекунды
	Name       string  `json:"name,omitempty"`
	Anchor     *anchor `json:"anchor,omitempty"`
	Destroyed  bool    `json:"destroyed,omitempty"`
}

type anchor struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Parser разбирает MQTT сообщения статусов трекинга.
// Формат топика: ar/t/{target_id}/status
type Parser struct {
	logger *utils.Logger
}

// NewParser создает парсер сообщений статусов
func NewParser(logger *utils.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse разбирает топик и payload в StatusMessage.
// Невалидный топик или payload — ошибка; пустой payload означает
// retained-tombstone и трактуется как уничтожение цели
func (p *Parser) Parse(topic string, payload []byte) (*StatusMessage, error) {
	targetID, err := p.parseTopic(topic)
	if err != nil {
		return nil, err
	}

	// Пустой retained payload публикуется брокером при очистке топика
	if len(payload) == 0 {
		return &StatusMessage{TargetID: targetID, Destroyed: true}, nil
	}

	var raw statusPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid status payload: %w", err)
	}

	msg := &StatusMessage{
		TargetID:  targetID,
		Name:      raw.Name,
		Destroyed: raw.Destroyed,
	}

	if raw.Anchor != nil {
		point := &models.GeoPoint{
			Latitude:  raw.Anchor.Latitude,
			Longitude: raw.Anchor.Longitude,
		}
		if err := point.Validate(); err != nil {
			return nil, fmt.Errorf("invalid anchor: %w", err)
		}
		msg.Anchor = point
	}

	if raw.Destroyed {
		return msg, nil
	}

	confidence, err := models.ParseConfidence(raw.Confidence)
	if err != nil {
		return nil, err
	}

	info := models.StatusInfoNormal
	if raw.Info != "" {
		info, err = models.ParseStatusInfo(raw.Info)
		if err != nil {
			return nil, err
		}
	}

	ts := time.Now()
	if raw.Timestamp > 0 {
		ts = time.UnixMilli(raw.Timestamp)
	}

	msg.Status = models.TargetStatus{
		Confidence: confidence,
		Info:       info,
		Timestamp:  ts,
	}

	return msg, nil
}

// parseTopic извлекает идентификатор цели из топика ar/t/{target_id}/status
func (p *Parser) parseTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "ar" || parts[1] != "t" || parts[3] != "status" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	if parts[2] == "" || parts[2] == "+" || parts[2] == "#" {
		return "", fmt.Errorf("invalid target id in topic: %s", topic)
	}
	return parts[2], nil
}
