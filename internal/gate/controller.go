package gate

import (
	"fmt"
	"time"

	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

// StatusObserver интерфейс подписки на статусы цели от подсистемы трекинга
type StatusObserver interface {
	// TargetID возвращает идентификатор наблюдаемой цели
	TargetID() string

	// CurrentStatus возвращает текущий статус цели
	CurrentStatus() models.TargetStatus

	// Subscribe регистрирует обработчики смены статуса и уничтожения наблюдателя
	Subscribe(onStatus func(models.TargetStatus), onDestroyed func())

	// Unsubscribe снимает регистрацию обработчиков
	Unsubscribe()
}

// PresenceController управляет видимостью контента одной цели.
// Хранит предыдущий статус, применяет политику фильтрации к старому и новому
// статусу и на фронтах решения переключает элементы презентации.
//
// Контроллер не содержит внутренней синхронизации: события статуса должны
// доставляться строго последовательно (гарантируется GateManager)
type PresenceController struct {
	policy    models.FilterPolicy
	elements  PresentationSet
	listeners []TransitionListener
	logger    *utils.Logger

	observer        StatusObserver
	previousStatus  models.TargetStatus
	seenFirstUpdate bool

	// Хук для сервисного слоя: получает событие перехода после того,
	// как презентация переключена и слушатели уведомлены
	onTransition func(*models.TransitionEvent)
}

// NewPresenceController создает контроллер с заданной политикой.
// Элементы презентации передаются один раз и переключаются на месте
func NewPresenceController(policy models.FilterPolicy, elements PresentationSet, logger *utils.Logger, listeners ...TransitionListener) *PresenceController {
	return &PresenceController{
		policy:         policy,
		elements:       elements,
		listeners:      listeners,
		logger:         logger,
		previousStatus: models.InitialStatus(),
	}
}

// Attach подписывает контроллер на наблюдателя и сразу обрабатывает его
// текущий статус как первое событие. Повторный attach без detach — ошибка
// программирования. Отсутствие обязательного элемента презентации — ошибка
// конфигурации, обнаруживаемая здесь, а не на переходах
func (c *PresenceController) Attach(observer StatusObserver) error {
	if observer == nil {
		return fmt.Errorf("observer cannot be nil")
	}
	if c.observer != nil {
		return fmt.Errorf("controller already attached to target %s", c.observer.TargetID())
	}
	if c.elements == nil {
		return fmt.Errorf("presentation set cannot be nil")
	}
	if v, ok := c.elements.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("presentation set: %w", err)
		}
	}

	c.observer = observer
	c.previousStatus = models.InitialStatus()
	c.seenFirstUpdate = false

	observer.Subscribe(func(status models.TargetStatus) {
		c.OnStatusChanged(status)
	}, c.onObserverDestroyed)

	c.logger.WithFields(map[string]interface{}{
		"target": observer.TargetID(),
		"policy": c.policy.String(),
	}).Debug("Presence controller attached")

	// Bootstrap: текущий статус обрабатывается как первое событие,
	// чтобы не ждать следующего изменения статуса
	c.OnStatusChanged(observer.CurrentStatus())

	return nil
}

// Detach снимает подписку и очищает ссылку на наблюдателя.
// Безопасен при повторных вызовах
func (c *PresenceController) Detach() {
	if c.observer == nil {
		return
	}

	targetID := c.observer.TargetID()
	c.observer.Unsubscribe()
	c.observer = nil

	c.logger.WithField("target", targetID).Debug("Presence controller detached")
}

// Attached сообщает, подписан ли контроллер на наблюдателя
func (c *PresenceController) Attached() bool {
	return c.observer != nil
}

// Policy возвращает политику фильтрации контроллера
func (c *PresenceController) Policy() models.FilterPolicy {
	return c.policy
}

// Rendered возвращает текущее решение о видимости
func (c *PresenceController) Rendered() bool {
	return ShouldRender(c.previousStatus.Confidence, c.policy)
}

// LastStatus возвращает последний обработанный статус
func (c *PresenceController) LastStatus() models.TargetStatus {
	return c.previousStatus
}

// OnStatusChanged основной обработчик смены статуса.
// Вычисляет решение о видимости для старого и нового статуса и на фронтах
// переключает презентацию. Самое первое событие со скрытым решением
// принудительно генерирует Lost, чтобы элементы гарантированно оказались
// в выключенном состоянии по умолчанию
func (c *PresenceController) OnStatusChanged(newStatus models.TargetStatus) *models.TransitionEvent {
	wasRendered := ShouldRender(c.previousStatus.Confidence, c.policy)
	isRendered := ShouldRender(newStatus.Confidence, c.policy)

	var event *models.TransitionEvent

	switch {
	case !wasRendered && isRendered:
		c.emitFound(newStatus)
		event = c.transitionEvent(models.TransitionFound, newStatus)
	case wasRendered && !isRendered:
		c.emitLost(newStatus)
		event = c.transitionEvent(models.TransitionLost, newStatus)
	case !c.seenFirstUpdate && !isRendered:
		// Первое событие без фронта: цель изначально не видна,
		// элементы приводятся к скрытому состоянию
		c.emitLost(newStatus)
		event = c.transitionEvent(models.TransitionLost, newStatus)
	}

	if event != nil && !c.seenFirstUpdate {
		event.First = true
	}

	c.seenFirstUpdate = true

	// Диагностика аномалии масштаба: не влияет на решение о видимости,
	// сообщается один раз при переходе в аномальное состояние
	if newStatus.Info == models.StatusInfoWrongScale && c.previousStatus.Info != models.StatusInfoWrongScale {
		c.logger.WithFields(map[string]interface{}{
			"target":     c.targetID(),
			"confidence": newStatus.Confidence.String(),
			"info":       newStatus.Info.String(),
		}).Warn("Target reports wrong scale")
		metrics.ScaleAnomalies.Inc()
	}

	c.previousStatus = newStatus

	if event != nil && c.onTransition != nil {
		c.onTransition(event)
	}

	return event
}

// SetTransitionHook задает обработчик событий перехода для сервисного слоя
func (c *PresenceController) SetTransitionHook(hook func(*models.TransitionEvent)) {
	c.onTransition = hook
}

// emitFound включает все элементы презентации и уведомляет слушателей.
// Переключение завершается до вызова уведомлений
func (c *PresenceController) emitFound(status models.TargetStatus) {
	c.elements.EnableAll()

	for _, l := range c.listeners {
		l.TargetFound()
	}

	c.logger.WithFields(map[string]interface{}{
		"target":     c.targetID(),
		"confidence": status.Confidence.String(),
	}).Info("Target found")
	metrics.Transitions.WithLabelValues(string(models.TransitionFound)).Inc()
}

// emitLost выключает все элементы презентации и уведомляет слушателей
func (c *PresenceController) emitLost(status models.TargetStatus) {
	c.elements.DisableAll()

	for _, l := range c.listeners {
		l.TargetLost()
	}

	c.logger.WithFields(map[string]interface{}{
		"target":     c.targetID(),
		"confidence": status.Confidence.String(),
	}).Info("Target lost")
	metrics.Transitions.WithLabelValues(string(models.TransitionLost)).Inc()
}

// onObserverDestroyed вызывается при уничтожении наблюдаемой сущности.
// Синхронный detach исключает обращения к освобожденному наблюдателю
func (c *PresenceController) onObserverDestroyed() {
	c.logger.WithField("target", c.targetID()).Debug("Observer destroyed, detaching")
	c.Detach()
}

func (c *PresenceController) transitionEvent(kind models.TransitionKind, status models.TargetStatus) *models.TransitionEvent {
	at := status.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	return &models.TransitionEvent{
		TargetID: c.targetID(),
		Kind:     kind,
		Status:   status,
		At:       at,
	}
}

func (c *PresenceController) targetID() string {
	if c.observer != nil {
		return c.observer.TargetID()
	}
	return ""
}
