package models

import (
	"fmt"
	"time"
)

// TransitionKind тип перехода видимости
type TransitionKind string

const (
	TransitionFound TransitionKind = "found" // Цель найдена, контент отображается
	TransitionLost  TransitionKind = "lost"  // Цель потеряна, контент скрыт
)

// Target представляет отслеживаемую цель и ее текущее состояние видимости
type Target struct {
	// Идентификация
	ID   string `json:"id"`             // Идентификатор цели от подсистемы трекинга
	Name string `json:"name,omitempty"` // Человекочитаемое имя

	// Геопривязка якоря цели
	Anchor *GeoPoint `json:"anchor,omitempty"`

	// Политика и состояние видимости
	Policy   FilterPolicy `json:"policy"`
	Rendered bool         `json:"rendered"` // Текущее решение: отображается ли контент

	// Статус
	LastStatus     TargetStatus   `json:"last_status"`
	LastTransition TransitionKind `json:"last_transition,omitempty"`
	LastUpdate     time.Time      `json:"last_update"`
}

// GetID возвращает уникальный идентификатор цели
func (t *Target) GetID() string {
	return t.ID
}

// Validate проверяет корректность данных цели
func (t *Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("target id is required")
	}

	if !t.Policy.Valid() {
		return fmt.Errorf("invalid filter policy: %d", t.Policy)
	}

	if t.Anchor != nil {
		if err := t.Anchor.Validate(); err != nil {
			return fmt.Errorf("anchor: %w", err)
		}
	}

	return nil
}

// IsStale проверяет, устарели ли данные трекинга
func (t *Target) IsStale(maxAge time.Duration) bool {
	return time.Since(t.LastUpdate) > maxAge
}

// TransitionEvent событие перехода видимости цели
type TransitionEvent struct {
	TargetID string         `json:"target_id"`
	Kind     TransitionKind `json:"kind"`
	Status   TargetStatus   `json:"status"`           // Статус, вызвавший переход
	Anchor   *GeoPoint      `json:"anchor,omitempty"` // Якорь на момент перехода
	At       time.Time      `json:"at"`
	First    bool           `json:"first,omitempty"` // Переход от самого первого события
}

// Validate проверяет корректность события перехода
func (e *TransitionEvent) Validate() error {
	if e.TargetID == "" {
		return fmt.Errorf("target_id is required")
	}
	if e.Kind != TransitionFound && e.Kind != TransitionLost {
		return fmt.Errorf("invalid transition kind: %q", e.Kind)
	}
	return nil
}
