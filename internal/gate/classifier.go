package gate

import "github.com/arvista/argate-backend/internal/models"

// ShouldRender решает, должен ли контент цели отображаться при данном уровне
// уверенности и политике фильтрации. Чистая тотальная функция: результат
// полностью определяется двумя аргументами.
//
// Tracked отображается при любой политике, NotObserved не отображается никогда.
func ShouldRender(confidence models.TrackingConfidence, policy models.FilterPolicy) bool {
	switch confidence {
	case models.ConfidenceTracked:
		return true
	case models.ConfidenceExtendedTracked:
		return policy == models.PolicyTrackedOrExtended ||
			policy == models.PolicyTrackedOrExtendedOrLimited
	case models.ConfidenceLimited:
		return policy == models.PolicyTrackedOrExtendedOrLimited
	default:
		// NotObserved и любые неизвестные значения
		return false
	}
}

// AcceptedLevels возвращает уровни уверенности, разрешенные политикой,
// от старшего к младшему. Используется REST API для описания политики
func AcceptedLevels(policy models.FilterPolicy) []models.TrackingConfidence {
	levels := []models.TrackingConfidence{
		models.ConfidenceTracked,
		models.ConfidenceExtendedTracked,
		models.ConfidenceLimited,
	}

	switch policy {
	case models.PolicyTrackedOnly:
		return levels[:1]
	case models.PolicyTrackedOrExtended:
		return levels[:2]
	default:
		return levels
	}
}
