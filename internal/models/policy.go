package models

import "fmt"

// FilterPolicy определяет, какие уровни уверенности считаются достаточными
// для отображения цели. Задается один раз при создании контроллера
type FilterPolicy uint8

const (
	PolicyTrackedOnly                FilterPolicy = 0 // Только полный трекинг
	PolicyTrackedOrExtended          FilterPolicy = 1 // Полный или экстраполированный
	PolicyTrackedOrExtendedOrLimited FilterPolicy = 2 // Полный, экстраполированный или ограниченный
)

// DefaultPolicy самая разрешающая политика, используется по умолчанию
const DefaultPolicy = PolicyTrackedOrExtendedOrLimited

// String возвращает строковое представление политики
func (p FilterPolicy) String() string {
	switch p {
	case PolicyTrackedOnly:
		return "tracked_only"
	case PolicyTrackedOrExtended:
		return "tracked_or_extended"
	case PolicyTrackedOrExtendedOrLimited:
		return "tracked_or_extended_or_limited"
	default:
		return "unknown"
	}
}

// ParsePolicy парсит политику из строки (конфигурация и REST API)
func ParsePolicy(s string) (FilterPolicy, error) {
	switch s {
	case "tracked_only":
		return PolicyTrackedOnly, nil
	case "tracked_or_extended":
		return PolicyTrackedOrExtended, nil
	case "tracked_or_extended_or_limited", "":
		return PolicyTrackedOrExtendedOrLimited, nil
	default:
		return DefaultPolicy, fmt.Errorf("unknown filter policy: %q", s)
	}
}

// Valid проверяет, что значение политики известно
func (p FilterPolicy) Valid() bool {
	return p <= PolicyTrackedOrExtendedOrLimited
}
