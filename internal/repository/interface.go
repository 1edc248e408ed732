package repository

import (
	"context"

	"github.com/arvista/argate-backend/internal/models"
)

// Repository интерфейс хранилища текущего состояния целей
type Repository interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Операции с целями
	SaveTarget(ctx context.Context, target *models.Target) error
	GetTarget(ctx context.Context, targetID string) (*models.Target, error)
	GetAllTargets(ctx context.Context) ([]*models.Target, error)
	GetTargetsInRadius(ctx context.Context, center models.GeoPoint, radiusKM float64) ([]*models.Target, error)
	DeleteTarget(ctx context.Context, targetID string) error

	// Журнал переходов (последние N на цель)
	AppendTransition(ctx context.Context, event *models.TransitionEvent) error
	GetTransitions(ctx context.Context, targetID string, limit int) ([]*models.TransitionEvent, error)

	// Статистика
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// JournalRepository интерфейс долговременного журнала переходов
type JournalRepository interface {
	Ping(ctx context.Context) error
	Close() error

	// Батчевое сохранение переходов
	SaveTransitionsBatch(ctx context.Context, events []*models.TransitionEvent) error

	// Чтение истории переходов цели
	LoadTransitions(ctx context.Context, targetID string, limit int) ([]*models.TransitionEvent, error)
}
