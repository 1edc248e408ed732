package service

import (
	"context"
	"sync"
	"time"

	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/internal/repository"
	"github.com/arvista/argate-backend/pkg/utils"
)

// JournalConfig конфигурация журнального writer'а
type JournalConfig struct {
	BatchSize     int           `json:"batch_size"`     // Размер батча
	FlushInterval time.Duration `json:"flush_interval"` // Интервал принудительного flush
	QueueSize     int           `json:"queue_size"`     // Размер буфера канала
}

// DefaultJournalConfig возвращает конфигурацию по умолчанию
func DefaultJournalConfig() *JournalConfig {
	return &JournalConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		QueueSize:     1000,
	}
}

// JournalWriter асинхронный writer журнала переходов в MySQL.
// Переходы накапливаются в батчи и сбрасываются по размеру или по таймеру.
// При переполнении очереди переходы отбрасываются: журнал вторичен,
// обработка событий трекинга блокироваться не должна
type JournalWriter struct {
	journal repository.JournalRepository
	logger  *utils.Logger
	config  *JournalConfig

	events chan *models.TransitionEvent
	buffer []*models.TransitionEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJournalWriter создает журнальный writer
func NewJournalWriter(journal repository.JournalRepository, cfg *JournalConfig, logger *utils.Logger) *JournalWriter {
	if cfg == nil {
		cfg = DefaultJournalConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &JournalWriter{
		journal: journal,
		logger:  logger,
		config:  cfg,
		events:  make(chan *models.TransitionEvent, cfg.QueueSize),
		buffer:  make([]*models.TransitionEvent, 0, cfg.BatchSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start запускает фоновую обработку очереди
func (w *JournalWriter) Start() {
	w.wg.Add(1)
	go w.run()

	w.logger.WithFields(map[string]interface{}{
		"batch_size":     w.config.BatchSize,
		"flush_interval": w.config.FlushInterval,
		"queue_size":     w.config.QueueSize,
	}).Info("Transition journal writer started")
}

// Stop останавливает writer, сбрасывая накопленный буфер
func (w *JournalWriter) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Transition journal writer stopped")
}

// Enqueue ставит переход в очередь на запись. Не блокирует
func (w *JournalWriter) Enqueue(event *models.TransitionEvent) {
	select {
	case w.events <- event:
		metrics.JournalQueueSize.Set(float64(len(w.events)))
	default:
		metrics.JournalDropped.Inc()
		w.logger.WithField("target", event.TargetID).Warn("Journal queue full, transition dropped")
	}
}

// run основной цикл батчинга
func (w *JournalWriter) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-w.events:
			w.buffer = append(w.buffer, event)
			metrics.JournalQueueSize.Set(float64(len(w.events)))

			if len(w.buffer) >= w.config.BatchSize {
				w.flush()
			}

		case <-ticker.C:
			w.flush()

		case <-w.ctx.Done():
			// Дочитываем очередь и сбрасываем остаток
			for {
				select {
				case event := <-w.events:
					w.buffer = append(w.buffer, event)
				default:
					w.flush()
					return
				}
			}
		}
	}
}

// flush записывает накопленный буфер одним батчем
func (w *JournalWriter) flush() {
	if len(w.buffer) == 0 {
		return
	}

	start := time.Now()
	batch := w.buffer
	w.buffer = make([]*models.TransitionEvent, 0, w.config.BatchSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.journal.SaveTransitionsBatch(ctx, batch); err != nil {
		metrics.JournalWriteErrors.Inc()
		w.logger.WithFields(map[string]interface{}{
			"count": len(batch),
			"error": err,
		}).Error("Failed to write transitions batch")
		return
	}

	metrics.JournalBatchSize.Observe(float64(len(batch)))
	metrics.JournalBatchDuration.Observe(time.Since(start).Seconds())

	w.logger.WithFields(map[string]interface{}{
		"count":       len(batch),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Transitions batch written")
}
