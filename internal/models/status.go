package models

import (
	"fmt"
	"time"
)

// TrackingConfidence уровень уверенности трекинга цели
type TrackingConfidence uint8

const (
	ConfidenceNotObserved     TrackingConfidence = 0 // Цель не наблюдается
	ConfidenceLimited         TrackingConfidence = 1 // Ограниченный трекинг
	ConfidenceExtendedTracked TrackingConfidence = 2 // Экстраполированный трекинг
	ConfidenceTracked         TrackingConfidence = 3 // Полный трекинг
)

// String возвращает строковое представление уровня
func (c TrackingConfidence) String() string {
	switch c {
	case ConfidenceNotObserved:
		return "not_observed"
	case ConfidenceLimited:
		return "limited"
	case ConfidenceExtendedTracked:
		return "extended_tracked"
	case ConfidenceTracked:
		return "tracked"
	default:
		return "unknown"
	}
}

// ParseConfidence парсит уровень уверенности из строки
func ParseConfidence(s string) (TrackingConfidence, error) {
	switch s {
	case "not_observed":
		return ConfidenceNotObserved, nil
	case "limited":
		return ConfidenceLimited, nil
	case "extended_tracked":
		return ConfidenceExtendedTracked, nil
	case "tracked":
		return ConfidenceTracked, nil
	default:
		return ConfidenceNotObserved, fmt.Errorf("unknown tracking confidence: %q", s)
	}
}

// StatusInfo диагностический тег, сопровождающий уровень уверенности.
// Не влияет на решение о видимости, используется только для диагностики
type StatusInfo uint8

const (
	StatusInfoNormal       StatusInfo = 0 // Штатное состояние
	StatusInfoUnknown      StatusInfo = 1 // Состояние неизвестно
	StatusInfoInitializing StatusInfo = 2 // Подсистема трекинга инициализируется
	StatusInfoRelocalizing StatusInfo = 3 // Идет повторная локализация
	StatusInfoWrongScale   StatusInfo = 4 // Некорректный масштаб цели
)

// String возвращает строковое представление тега
func (i StatusInfo) String() string {
	switch i {
	case StatusInfoNormal:
		return "normal"
	case StatusInfoUnknown:
		return "unknown"
	case StatusInfoInitializing:
		return "initializing"
	case StatusInfoRelocalizing:
		return "relocalizing"
	case StatusInfoWrongScale:
		return "wrong_scale"
	default:
		return "unknown"
	}
}

// ParseStatusInfo парсит диагностический тег из строки
func ParseStatusInfo(s string) (StatusInfo, error) {
	switch s {
	case "normal", "":
		return StatusInfoNormal, nil
	case "unknown":
		return StatusInfoUnknown, nil
	case "initializing":
		return StatusInfoInitializing, nil
	case "relocalizing":
		return StatusInfoRelocalizing, nil
	case "wrong_scale":
		return StatusInfoWrongScale, nil
	default:
		return StatusInfoUnknown, fmt.Errorf("unknown status info: %q", s)
	}
}

// TargetStatus снимок статуса цели от подсистемы трекинга.
// Неизменяемый, заменяется целиком при каждом новом событии
type TargetStatus struct {
	Confidence TrackingConfidence `json:"confidence"`
	Info       StatusInfo         `json:"info"`
	Timestamp  time.Time          `json:"timestamp"`
}

// InitialStatus возвращает начальный статус до первого события трекинга
func InitialStatus() TargetStatus {
	return TargetStatus{
		Confidence: ConfidenceNotObserved,
		Info:       StatusInfoNormal,
	}
}
