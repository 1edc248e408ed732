package gate

import "github.com/arvista/argate-backend/internal/models"

// targetObserver наблюдатель статуса цели, питаемый событиями из MQTT.
// Реализует StatusObserver; доставка событий сериализуется GateManager,
// поэтому внутренней синхронизации нет
type targetObserver struct {
	id      string
	current models.TargetStatus

	onStatus    func(models.TargetStatus)
	onDestroyed func()
}

// newTargetObserver создает наблюдателя с известным текущим статусом
func newTargetObserver(id string, current models.TargetStatus) *targetObserver {
	return &targetObserver{
		id:      id,
		current: current,
	}
}

// TargetID возвращает идентификатор цели
func (o *targetObserver) TargetID() string {
	return o.id
}

// CurrentStatus возвращает текущий статус цели
func (o *targetObserver) CurrentStatus() models.TargetStatus {
	return o.current
}

// Subscribe регистрирует обработчики смены статуса и уничтожения
func (o *targetObserver) Subscribe(onStatus func(models.TargetStatus), onDestroyed func()) {
	o.onStatus = onStatus
	o.onDestroyed = onDestroyed
}

// Unsubscribe снимает регистрацию обработчиков
func (o *targetObserver) Unsubscribe() {
	o.onStatus = nil
	o.onDestroyed = nil
}

// Publish доставляет новый статус подписчику
func (o *targetObserver) Publish(status models.TargetStatus) {
	o.current = status
	if o.onStatus != nil {
		o.onStatus(status)
	}
}

// Destroy сигнализирует об уничтожении наблюдаемой сущности.
// Подписчик обязан синхронно отписаться
func (o *targetObserver) Destroy() {
	if o.onDestroyed != nil {
		o.onDestroyed()
	}
}
