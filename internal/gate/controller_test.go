package gate

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

func testStatus(conf models.TrackingConfidence) models.TargetStatus {
	return models.TargetStatus{
		Confidence: conf,
		Info:       models.StatusInfoNormal,
		Timestamp:  time.Now(),
	}
}

// recordingListener фиксирует порядок переходов и снимок элементов
// на момент каждого уведомления
type recordingListener struct {
	elements *ElementSet
	events   []models.TransitionKind
	snapshot []map[ElementKind]bool
}

func (l *recordingListener) TargetFound() {
	l.events = append(l.events, models.TransitionFound)
	l.snapshot = append(l.snapshot, l.elements.States())
}

func (l *recordingListener) TargetLost() {
	l.events = append(l.events, models.TransitionLost)
	l.snapshot = append(l.snapshot, l.elements.States())
}

func newTestController(policy models.FilterPolicy, initial models.TargetStatus) (*PresenceController, *targetObserver, *ElementSet, *recordingListener) {
	logger := utils.NewLogger("error", "text")
	elements := NewElementSet(true)
	listener := &recordingListener{elements: elements}
	controller := NewPresenceController(policy, elements, logger, listener)
	observer := newTargetObserver("target-1", initial)
	return controller, observer, elements, listener
}

func TestController_Attach_Errors(t *testing.T) {
	logger := utils.NewLogger("error", "text")

	t.Run("Nil observer", func(t *testing.T) {
		c := NewPresenceController(models.DefaultPolicy, NewElementSet(false), logger)
		assert.Error(t, c.Attach(nil))
	})

	t.Run("Already attached", func(t *testing.T) {
		c, obs, _, _ := newTestController(models.DefaultPolicy, testStatus(models.ConfidenceTracked))
		require.NoError(t, c.Attach(obs))
		err := c.Attach(newTargetObserver("target-2", testStatus(models.ConfidenceTracked)))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already attached")
	})

	t.Run("Missing required element", func(t *testing.T) {
		elements := NewElementSet(false)
		elements.Collision = nil
		c := NewPresenceController(models.DefaultPolicy, elements, logger)
		err := c.Attach(newTargetObserver("target-1", testStatus(models.ConfidenceTracked)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collision")
	})

	t.Run("Missing audio is allowed", func(t *testing.T) {
		c := NewPresenceController(models.DefaultPolicy, NewElementSet(false), logger)
		assert.NoError(t, c.Attach(newTargetObserver("target-1", testStatus(models.ConfidenceTracked))))
	})
}

func TestController_FirstUpdate_VisibleEmitsFound(t *testing.T) {
	c, obs, elements, listener := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceTracked))

	require.NoError(t, c.Attach(obs))

	// Bootstrap при attach: видимый статус дает Found
	require.Equal(t, []models.TransitionKind{models.TransitionFound}, listener.events)
	assert.True(t, elements.Visual.Enabled())
	assert.True(t, elements.Collision.Enabled())
	assert.True(t, elements.UISurface.Enabled())
	assert.True(t, elements.Audio.Enabled())
	assert.True(t, c.Rendered())
}

func TestController_FirstUpdate_HiddenForcesLost(t *testing.T) {
	// Самое первое событие со скрытым решением дает принудительный Lost,
	// хотя фронта нет: previousStatus тоже скрыт
	c, obs, elements, listener := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceNotObserved))

	require.NoError(t, c.Attach(obs))

	require.Equal(t, []models.TransitionKind{models.TransitionLost}, listener.events)
	assert.False(t, elements.Visual.Enabled())
	assert.False(t, c.Rendered())

	// Повторный скрытый статус уже не дает событий
	obs.Publish(testStatus(models.ConfidenceLimited))
	assert.Len(t, listener.events, 1)
}

func TestController_StatusSequence_TrackedOnly(t *testing.T) {
	// Последовательность ExtendedTracked, Tracked, Limited, NotObserved
	// под строгой политикой: Lost (первое), Found, Lost
	c, obs, _, listener := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceExtendedTracked))

	require.NoError(t, c.Attach(obs))
	obs.Publish(testStatus(models.ConfidenceTracked))
	obs.Publish(testStatus(models.ConfidenceLimited))
	obs.Publish(testStatus(models.ConfidenceNotObserved))

	assert.Equal(t, []models.TransitionKind{
		models.TransitionLost,
		models.TransitionFound,
		models.TransitionLost,
	}, listener.events)
}

func TestController_StatusSequence_MostPermissive(t *testing.T) {
	// Та же последовательность под самой широкой политикой:
	// Found (первое), затем Lost только на NotObserved
	c, obs, _, listener := newTestController(models.PolicyTrackedOrExtendedOrLimited, testStatus(models.ConfidenceExtendedTracked))

	require.NoError(t, c.Attach(obs))
	obs.Publish(testStatus(models.ConfidenceTracked))
	obs.Publish(testStatus(models.ConfidenceLimited))
	obs.Publish(testStatus(models.ConfidenceNotObserved))

	assert.Equal(t, []models.TransitionKind{
		models.TransitionFound,
		models.TransitionLost,
	}, listener.events)
}

func TestController_NoRedundantTransitions(t *testing.T) {
	c, obs, _, listener := newTestController(models.PolicyTrackedOrExtended, testStatus(models.ConfidenceTracked))

	require.NoError(t, c.Attach(obs))
	// Решение о видимости не меняется: события не генерируются
	obs.Publish(testStatus(models.ConfidenceTracked))
	obs.Publish(testStatus(models.ConfidenceExtendedTracked))
	obs.Publish(testStatus(models.ConfidenceTracked))

	assert.Equal(t, []models.TransitionKind{models.TransitionFound}, listener.events)
}

func TestController_ElementsToggledBeforeNotification(t *testing.T) {
	c, obs, _, listener := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceTracked))

	require.NoError(t, c.Attach(obs))
	obs.Publish(testStatus(models.ConfidenceNotObserved))
	obs.Publish(testStatus(models.ConfidenceTracked))

	require.Len(t, listener.snapshot, 3)

	// На момент каждого уведомления все элементы уже в целевом состоянии
	for i, kind := range listener.events {
		expected := kind == models.TransitionFound
		for el, enabled := range listener.snapshot[i] {
			assert.Equal(t, expected, enabled, "event %d (%s): element %s", i, kind, el)
		}
	}
}

func TestController_TransitionEvents(t *testing.T) {
	c, obs, _, _ := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceNotObserved))

	var events []*models.TransitionEvent
	c.SetTransitionHook(func(e *models.TransitionEvent) {
		events = append(events, e)
	})

	require.NoError(t, c.Attach(obs))
	obs.Publish(testStatus(models.ConfidenceTracked))
	obs.Publish(testStatus(models.ConfidenceTracked))
	obs.Publish(testStatus(models.ConfidenceNotObserved))

	require.Len(t, events, 3)
	assert.Equal(t, models.TransitionLost, events[0].Kind)
	assert.True(t, events[0].First)
	assert.Equal(t, models.TransitionFound, events[1].Kind)
	assert.False(t, events[1].First)
	assert.Equal(t, models.TransitionLost, events[2].Kind)
	assert.Equal(t, "target-1", events[0].TargetID)
	assert.False(t, events[0].At.IsZero())
}

func TestController_Detach_Idempotent(t *testing.T) {
	c, obs, _, listener := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceTracked))

	require.NoError(t, c.Attach(obs))
	assert.True(t, c.Attached())

	c.Detach()
	assert.False(t, c.Attached())
	c.Detach() // Повторный detach безопасен
	assert.False(t, c.Attached())

	// После detach события наблюдателя не доходят до контроллера
	obs.Publish(testStatus(models.ConfidenceNotObserved))
	assert.Equal(t, []models.TransitionKind{models.TransitionFound}, listener.events)

	// После detach можно подписаться заново
	require.NoError(t, c.Attach(newTargetObserver("target-1", testStatus(models.ConfidenceNotObserved))))
	assert.Equal(t, models.TransitionLost, listener.events[len(listener.events)-1])
}

func TestController_ObserverDestroyedDetaches(t *testing.T) {
	c, obs, _, _ := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceTracked))

	require.NoError(t, c.Attach(obs))
	obs.Destroy()

	assert.False(t, c.Attached())
}

func TestController_ScaleAnomalyReportedOncePerEpisode(t *testing.T) {
	c, obs, _, _ := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceTracked))
	require.NoError(t, c.Attach(obs))

	wrongScale := models.TargetStatus{
		Confidence: models.ConfidenceTracked,
		Info:       models.StatusInfoWrongScale,
		Timestamp:  time.Now(),
	}

	before := testutil.ToFloat64(metrics.ScaleAnomalies)

	// Вход в аномалию фиксируется один раз, удержание — нет
	obs.Publish(wrongScale)
	obs.Publish(wrongScale)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ScaleAnomalies))

	// Выход и повторный вход дают новое сообщение
	obs.Publish(testStatus(models.ConfidenceTracked))
	obs.Publish(wrongScale)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.ScaleAnomalies))
}

func TestController_ScaleAnomalyDoesNotAffectVisibility(t *testing.T) {
	c, obs, elements, listener := newTestController(models.PolicyTrackedOnly, testStatus(models.ConfidenceTracked))
	require.NoError(t, c.Attach(obs))

	obs.Publish(models.TargetStatus{
		Confidence: models.ConfidenceTracked,
		Info:       models.StatusInfoWrongScale,
		Timestamp:  time.Now(),
	})

	assert.True(t, c.Rendered())
	assert.True(t, elements.Visual.Enabled())
	assert.Equal(t, []models.TransitionKind{models.TransitionFound}, listener.events)
}
