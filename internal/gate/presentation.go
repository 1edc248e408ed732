package gate

import "fmt"

// Toggleable элемент презентации с переключаемым состоянием enabled/disabled.
// Визуал, коллизии, UI-поверхность и аудио реализуют этот интерфейс
type Toggleable interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// PresentationSet набор элементов презентации, управляемый контроллером.
// EnableAll/DisableAll применяются ко всем элементам без частичного применения
type PresentationSet interface {
	EnableAll()
	DisableAll()
}

// ElementKind категория элемента презентации
type ElementKind string

const (
	ElementVisual    ElementKind = "visual"    // Видимая геометрия
	ElementCollision ElementKind = "collision" // Коллизии
	ElementUISurface ElementKind = "ui"        // UI-поверхность
	ElementAudio     ElementKind = "audio"     // Аудио (опциональный)
)

// ElementSet статически типизированный набор элементов презентации цели.
// Собирается один раз при attach, а не запрашивается на каждом переходе
type ElementSet struct {
	Visual    Toggleable
	Collision Toggleable
	UISurface Toggleable
	Audio     Toggleable // Может отсутствовать; nil означает ноль аудио-элементов
}

// Validate проверяет, что обязательные элементы присутствуют.
// Отсутствие visual/collision/ui — ошибка конфигурации, отсутствие
// audio допустимо
func (s *ElementSet) Validate() error {
	if s.Visual == nil {
		return fmt.Errorf("presentation element %q is required", ElementVisual)
	}
	if s.Collision == nil {
		return fmt.Errorf("presentation element %q is required", ElementCollision)
	}
	if s.UISurface == nil {
		return fmt.Errorf("presentation element %q is required", ElementUISurface)
	}
	return nil
}

// EnableAll включает все элементы набора
func (s *ElementSet) EnableAll() {
	s.setAll(true)
}

// DisableAll выключает все элементы набора
func (s *ElementSet) DisableAll() {
	s.setAll(false)
}

func (s *ElementSet) setAll(enabled bool) {
	for _, el := range []Toggleable{s.Visual, s.Collision, s.UISurface, s.Audio} {
		if el != nil {
			el.SetEnabled(enabled)
		}
	}
}

// element серверное представление элемента презентации.
// Состояние enabled отражается в снимке цели, отдаваемом клиентам
type element struct {
	kind    ElementKind
	enabled bool
}

// NewElement создает элемент презентации в выключенном состоянии
func NewElement(kind ElementKind) Toggleable {
	return &element{kind: kind}
}

// SetEnabled переключает состояние элемента
func (e *element) SetEnabled(enabled bool) {
	e.enabled = enabled
}

// Enabled возвращает текущее состояние элемента
func (e *element) Enabled() bool {
	return e.enabled
}

// NewElementSet собирает стандартный набор элементов цели.
// Аудио-элемент опционален и создается только при withAudio
func NewElementSet(withAudio bool) *ElementSet {
	set := &ElementSet{
		Visual:    NewElement(ElementVisual),
		Collision: NewElement(ElementCollision),
		UISurface: NewElement(ElementUISurface),
	}
	if withAudio {
		set.Audio = NewElement(ElementAudio)
	}
	return set
}

// States возвращает снимок состояний элементов набора
func (s *ElementSet) States() map[ElementKind]bool {
	states := map[ElementKind]bool{
		ElementVisual:    s.Visual != nil && s.Visual.Enabled(),
		ElementCollision: s.Collision != nil && s.Collision.Enabled(),
		ElementUISurface: s.UISurface != nil && s.UISurface.Enabled(),
	}
	if s.Audio != nil {
		states[ElementAudio] = s.Audio.Enabled()
	}
	return states
}

// TransitionListener получает уведомления о переходах видимости.
// Вызывается синхронно после переключения всех элементов презентации
type TransitionListener interface {
	TargetFound()
	TargetLost()
}

// ListenerFuncs адаптер для подписки через функции
type ListenerFuncs struct {
	OnFound func()
	OnLost  func()
}

// TargetFound вызывает OnFound, если он задан
func (l ListenerFuncs) TargetFound() {
	if l.OnFound != nil {
		l.OnFound()
	}
}

// TargetLost вызывает OnLost, если он задан
func (l ListenerFuncs) TargetLost() {
	if l.OnLost != nil {
		l.OnLost()
	}
}
