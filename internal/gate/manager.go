package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/internal/repository"
	"github.com/arvista/argate-backend/pkg/utils"
)

// TransitionSink получает события переходов для трансляции клиентам
type TransitionSink interface {
	BroadcastTransition(event *models.TransitionEvent)
}

// TransitionJournal ставит события переходов в очередь долговременного журнала
type TransitionJournal interface {
	Enqueue(event *models.TransitionEvent)
}

// ManagerConfig конфигурация менеджера контроллеров
type ManagerConfig struct {
	DefaultPolicy models.FilterPolicy // Политика для новых целей
	StaleAfter    time.Duration       // Молчание трекера до принудительной потери
	SweepInterval time.Duration       // Интервал проверки устаревших целей
	AudioElements bool                // Создавать ли аудио-элементы презентации
}

// Update событие от подсистемы трекинга для одной цели
type Update struct {
	TargetID  string
	Name      string
	Anchor    *models.GeoPoint
	Status    models.TargetStatus
	Destroyed bool // Трекер сообщил об уничтожении цели
}

// managedTarget цель под управлением менеджера
type managedTarget struct {
	// Сериализует доставку событий в контроллер
	mu sync.Mutex

	observer   *targetObserver
	controller *PresenceController
	elements   *ElementSet

	name       string
	anchor     *models.GeoPoint
	lastUpdate time.Time
}

// GateManager маршрутизирует статусы трекинга в контроллеры присутствия.
// Держит по одному контроллеру на цель, сериализует доставку per-target
// и разносит переходы в хранилище, журнал и broadcast
type GateManager struct {
	config  ManagerConfig
	repo    repository.Repository
	sink    TransitionSink    // Может быть nil
	journal TransitionJournal // Может быть nil
	logger  *utils.Logger

	mu      sync.RWMutex
	targets map[string]*managedTarget
}

// NewGateManager создает менеджер контроллеров
func NewGateManager(cfg ManagerConfig, repo repository.Repository, sink TransitionSink, journal TransitionJournal, logger *utils.Logger) *GateManager {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}

	return &GateManager{
		config:  cfg,
		repo:    repo,
		sink:    sink,
		journal: journal,
		logger:  logger,
		targets: make(map[string]*managedTarget),
	}
}

// Apply обрабатывает одно событие трекинга.
// Для новой цели создается контроллер с политикой по умолчанию и событие
// обрабатывается как самое первое (bootstrap при attach)
func (m *GateManager) Apply(ctx context.Context, upd Update) error {
	if upd.TargetID == "" {
		return fmt.Errorf("target id is required")
	}

	if upd.Destroyed {
		return m.Destroy(ctx, upd.TargetID)
	}

	mt := m.ensureTarget(upd.TargetID)

	mt.mu.Lock()
	err := m.applyLocked(ctx, mt, upd)
	mt.mu.Unlock()

	m.updateRenderedGauge()

	return err
}

// applyLocked обрабатывает событие под блокировкой цели
func (m *GateManager) applyLocked(ctx context.Context, mt *managedTarget, upd Update) error {
	if upd.Name != "" {
		mt.name = upd.Name
	}
	if upd.Anchor != nil {
		mt.anchor = upd.Anchor
	}
	mt.lastUpdate = time.Now()

	if !mt.controller.Attached() {
		// Первое событие цели: наблюдатель создается с этим статусом,
		// attach обрабатывает его как первое событие
		mt.observer = newTargetObserver(upd.TargetID, upd.Status)
		if err := mt.controller.Attach(mt.observer); err != nil {
			return fmt.Errorf("failed to attach controller for %s: %w", upd.TargetID, err)
		}
	} else {
		mt.observer.Publish(upd.Status)
	}

	metrics.MQTTMessagesReceived.WithLabelValues(upd.Status.Confidence.String()).Inc()

	m.persistState(ctx, upd.TargetID, mt)

	return nil
}

// Destroy обрабатывает уничтожение цели: контроллер синхронно отписывается,
// цель убирается из хранилища
func (m *GateManager) Destroy(ctx context.Context, targetID string) error {
	m.mu.Lock()
	mt, ok := m.targets[targetID]
	if ok {
		delete(m.targets, targetID)
		metrics.TrackedTargets.Set(float64(len(m.targets)))
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	mt.mu.Lock()
	if mt.observer != nil {
		mt.observer.Destroy()
	}
	mt.mu.Unlock()

	if err := m.repo.DeleteTarget(ctx, targetID); err != nil {
		m.logger.WithFields(map[string]interface{}{
			"target": targetID,
			"error":  err,
		}).Warn("Failed to delete destroyed target from repository")
	}

	m.logger.WithField("target", targetID).Info("Target destroyed")
	m.updateRenderedGauge()

	return nil
}

// SetPolicy меняет политику фильтрации цели. Политика контроллера
// неизменяема, поэтому создается новый контроллер, который при attach
// заново оценивает видимость под новой политикой
func (m *GateManager) SetPolicy(ctx context.Context, targetID string, policy models.FilterPolicy) error {
	if !policy.Valid() {
		return fmt.Errorf("invalid filter policy: %d", policy)
	}

	m.mu.RLock()
	mt, ok := m.targets[targetID]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("target %s not found", targetID)
	}

	mt.mu.Lock()
	mt.controller.Detach()
	mt.controller = m.newController(targetID, policy, mt)
	err := mt.controller.Attach(mt.observer)
	if err == nil {
		m.persistState(ctx, targetID, mt)
	}
	mt.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to re-attach controller for %s: %w", targetID, err)
	}

	m.logger.WithFields(map[string]interface{}{
		"target": targetID,
		"policy": policy.String(),
	}).Info("Target filter policy changed")

	m.updateRenderedGauge()

	return nil
}

// Run запускает периодическую проверку устаревших целей.
// Блокирует до отмены контекста
func (m *GateManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepStale(ctx)
		}
	}
}

// Stats возвращает статистику менеджера
func (m *GateManager) Stats() map[string]interface{} {
	snapshot := m.snapshotTargets()

	rendered := 0
	for _, mt := range snapshot {
		mt.mu.Lock()
		if mt.controller.Rendered() {
			rendered++
		}
		mt.mu.Unlock()
	}

	return map[string]interface{}{
		"targets_total":    len(snapshot),
		"targets_rendered": rendered,
		"default_policy":   m.config.DefaultPolicy.String(),
	}
}

// snapshotTargets копирует список целей без удержания блокировки менеджера
// во время обращения к контроллерам. Нельзя брать mt.mu под m.mu:
// хук переходов работает под mt.mu и сам обращается к менеджеру
func (m *GateManager) snapshotTargets() []*managedTarget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]*managedTarget, 0, len(m.targets))
	for _, mt := range m.targets {
		snapshot = append(snapshot, mt)
	}
	return snapshot
}

// ensureTarget возвращает управляемую цель, создавая ее при необходимости
func (m *GateManager) ensureTarget(targetID string) *managedTarget {
	m.mu.RLock()
	mt, ok := m.targets[targetID]
	m.mu.RUnlock()
	if ok {
		return mt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok = m.targets[targetID]; ok {
		return mt
	}

	mt = &managedTarget{
		elements: NewElementSet(m.config.AudioElements),
	}
	mt.controller = m.newController(targetID, m.config.DefaultPolicy, mt)

	if !m.config.AudioElements {
		m.logger.WithField("target", targetID).Debug("Audio element disabled, presentation set without audio")
	}

	m.targets[targetID] = mt
	metrics.TrackedTargets.Set(float64(len(m.targets)))

	m.logger.WithFields(map[string]interface{}{
		"target": targetID,
		"policy": m.config.DefaultPolicy.String(),
	}).Info("Presence controller created")

	return mt
}

// newController создает контроллер с хуком разноски переходов
func (m *GateManager) newController(targetID string, policy models.FilterPolicy, mt *managedTarget) *PresenceController {
	controller := NewPresenceController(policy, mt.elements, m.logger)
	controller.SetTransitionHook(func(event *models.TransitionEvent) {
		event.Anchor = mt.anchor
		m.handleTransition(event)
	})
	return controller
}

// handleTransition разносит событие перехода: журнал, broadcast, метрики.
// Состояние цели сохраняется отдельно в persistState
func (m *GateManager) handleTransition(event *models.TransitionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.repo.AppendTransition(ctx, event); err != nil {
		m.logger.WithFields(map[string]interface{}{
			"target": event.TargetID,
			"kind":   event.Kind,
			"error":  err,
		}).Error("Failed to append transition")
	}

	if m.journal != nil {
		m.journal.Enqueue(event)
	}

	if m.sink != nil {
		m.sink.BroadcastTransition(event)
	}
}

// persistState сохраняет текущее состояние цели в хранилище.
// Ошибка сохранения не влияет на state machine
func (m *GateManager) persistState(ctx context.Context, targetID string, mt *managedTarget) {
	status := mt.controller.LastStatus()

	target := &models.Target{
		ID:         targetID,
		Name:       mt.name,
		Anchor:     mt.anchor,
		Policy:     mt.controller.Policy(),
		Rendered:   mt.controller.Rendered(),
		LastStatus: status,
		LastUpdate: mt.lastUpdate,
	}
	if target.Rendered {
		target.LastTransition = models.TransitionFound
	} else {
		target.LastTransition = models.TransitionLost
	}

	if err := m.repo.SaveTarget(ctx, target); err != nil {
		m.logger.WithFields(map[string]interface{}{
			"target": targetID,
			"error":  err,
		}).Error("Failed to save target state")
	}
}

// sweepStale принудительно переводит молчащие цели в NotObserved.
// Молчание трекера означает потерю трекинга, а не ошибку
func (m *GateManager) sweepStale(ctx context.Context) {
	cutoff := time.Now().Add(-m.config.StaleAfter)

	m.mu.RLock()
	stale := make([]*managedTarget, 0)
	staleIDs := make([]string, 0)
	for id, mt := range m.targets {
		stale = append(stale, mt)
		staleIDs = append(staleIDs, id)
	}
	m.mu.RUnlock()

	expired := 0
	for i, mt := range stale {
		mt.mu.Lock()
		if mt.lastUpdate.Before(cutoff) && mt.controller.Attached() && mt.controller.Rendered() {
			m.logger.WithField("target", staleIDs[i]).Warn("Tracker silent, forcing not_observed")
			mt.observer.Publish(models.TargetStatus{
				Confidence: models.ConfidenceNotObserved,
				Info:       models.StatusInfoNormal,
				Timestamp:  time.Now(),
			})
			metrics.StaleTargetsExpired.Inc()
			m.persistState(ctx, staleIDs[i], mt)
			expired++
		}
		mt.mu.Unlock()
	}

	if expired > 0 {
		m.updateRenderedGauge()
	}
}

// updateRenderedGauge пересчитывает gauge отображаемых целей.
// Вызывается только вне блокировок целей
func (m *GateManager) updateRenderedGauge() {
	rendered := 0
	for _, mt := range m.snapshotTargets() {
		mt.mu.Lock()
		if mt.controller.Rendered() {
			rendered++
		}
		mt.mu.Unlock()
	}
	metrics.RenderedTargets.Set(float64(rendered))
}
