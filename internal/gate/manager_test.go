package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

// MockRepository для тестирования
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) SaveTarget(ctx context.Context, target *models.Target) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *MockRepository) GetTarget(ctx context.Context, targetID string) (*models.Target, error) {
	args := m.Called(ctx, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Target), args.Error(1)
}

func (m *MockRepository) GetAllTargets(ctx context.Context) ([]*models.Target, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Target), args.Error(1)
}

func (m *MockRepository) GetTargetsInRadius(ctx context.Context, center models.GeoPoint, radiusKM float64) ([]*models.Target, error) {
	args := m.Called(ctx, center, radiusKM)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Target), args.Error(1)
}

func (m *MockRepository) DeleteTarget(ctx context.Context, targetID string) error {
	args := m.Called(ctx, targetID)
	return args.Error(0)
}

func (m *MockRepository) AppendTransition(ctx context.Context, event *models.TransitionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockRepository) GetTransitions(ctx context.Context, targetID string, limit int) ([]*models.TransitionEvent, error) {
	args := m.Called(ctx, targetID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TransitionEvent), args.Error(1)
}

func (m *MockRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

// recordingSink накапливает транслированные события
type recordingSink struct {
	events []*models.TransitionEvent
}

func (s *recordingSink) BroadcastTransition(event *models.TransitionEvent) {
	s.events = append(s.events, event)
}

// recordingJournal накапливает события журнала
type recordingJournal struct {
	events []*models.TransitionEvent
}

func (j *recordingJournal) Enqueue(event *models.TransitionEvent) {
	j.events = append(j.events, event)
}

func newTestManager(t *testing.T, cfg ManagerConfig) (*GateManager, *MockRepository, *recordingSink, *recordingJournal) {
	t.Helper()

	repo := &MockRepository{}
	repo.On("SaveTarget", mock.Anything, mock.Anything).Return(nil)
	repo.On("DeleteTarget", mock.Anything, mock.Anything).Return(nil)
	repo.On("AppendTransition", mock.Anything, mock.Anything).Return(nil)

	sink := &recordingSink{}
	journal := &recordingJournal{}
	logger := utils.NewLogger("error", "text")

	return NewGateManager(cfg, repo, sink, journal, logger), repo, sink, journal
}

func TestManager_Apply_FirstUpdateBootstrap(t *testing.T) {
	m, repo, sink, journal := newTestManager(t, ManagerConfig{
		DefaultPolicy: models.DefaultPolicy,
	})
	ctx := context.Background()

	err := m.Apply(ctx, Update{
		TargetID: "anchor-1",
		Name:     "Lobby poster",
		Anchor:   &models.GeoPoint{Latitude: 46.0, Longitude: 8.0},
		Status:   testStatus(models.ConfidenceExtendedTracked),
	})
	require.NoError(t, err)

	// ExtendedTracked виден под политикой по умолчанию: первый переход Found
	require.Len(t, sink.events, 1)
	assert.Equal(t, models.TransitionFound, sink.events[0].Kind)
	assert.True(t, sink.events[0].First)
	assert.Equal(t, "anchor-1", sink.events[0].TargetID)
	require.NotNil(t, sink.events[0].Anchor)
	assert.InDelta(t, 46.0, sink.events[0].Anchor.Latitude, 1e-9)

	assert.Len(t, journal.events, 1)
	repo.AssertCalled(t, "AppendTransition", mock.Anything, mock.Anything)
	repo.AssertCalled(t, "SaveTarget", mock.Anything, mock.MatchedBy(func(tg *models.Target) bool {
		return tg.ID == "anchor-1" && tg.Rendered && tg.Name == "Lobby poster"
	}))
}

func TestManager_Apply_EmptyTargetID(t *testing.T) {
	m, _, _, _ := newTestManager(t, ManagerConfig{DefaultPolicy: models.DefaultPolicy})
	assert.Error(t, m.Apply(context.Background(), Update{Status: testStatus(models.ConfidenceTracked)}))
}

func TestManager_Apply_SubsequentTransitions(t *testing.T) {
	m, _, sink, _ := newTestManager(t, ManagerConfig{DefaultPolicy: models.PolicyTrackedOnly})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceNotObserved)}))
	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceTracked)}))
	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceExtendedTracked)}))
	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceNotObserved)}))

	kinds := make([]models.TransitionKind, 0, len(sink.events))
	for _, e := range sink.events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []models.TransitionKind{
		models.TransitionLost, // Принудительный первый Lost
		models.TransitionFound,
		models.TransitionLost, // ExtendedTracked скрыт под tracked_only
	}, kinds)
}

func TestManager_Apply_IndependentTargets(t *testing.T) {
	m, _, sink, _ := newTestManager(t, ManagerConfig{DefaultPolicy: models.PolicyTrackedOnly})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceTracked)}))
	require.NoError(t, m.Apply(ctx, Update{TargetID: "b", Status: testStatus(models.ConfidenceNotObserved)}))

	stats := m.Stats()
	assert.Equal(t, 2, stats["targets_total"])
	assert.Equal(t, 1, stats["targets_rendered"])
	require.Len(t, sink.events, 2)
	assert.Equal(t, "a", sink.events[0].TargetID)
	assert.Equal(t, "b", sink.events[1].TargetID)
}

func TestManager_Destroy(t *testing.T) {
	m, repo, _, _ := newTestManager(t, ManagerConfig{DefaultPolicy: models.DefaultPolicy})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceTracked)}))
	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Destroyed: true}))

	repo.AssertCalled(t, "DeleteTarget", mock.Anything, "a")
	assert.Equal(t, 0, m.Stats()["targets_total"])

	// Уничтожение неизвестной цели не является ошибкой
	assert.NoError(t, m.Destroy(ctx, "unknown"))
}

func TestManager_SetPolicy_ReevaluatesVisibility(t *testing.T) {
	m, _, sink, _ := newTestManager(t, ManagerConfig{DefaultPolicy: models.PolicyTrackedOrExtendedOrLimited})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceLimited)}))
	require.Len(t, sink.events, 1)
	require.Equal(t, models.TransitionFound, sink.events[0].Kind)

	// Сужение политики скрывает цель с Limited
	require.NoError(t, m.SetPolicy(ctx, "a", models.PolicyTrackedOnly))

	require.Len(t, sink.events, 2)
	assert.Equal(t, models.TransitionLost, sink.events[1].Kind)
	assert.Equal(t, 0, m.Stats()["targets_rendered"])
}

func TestManager_SetPolicy_Errors(t *testing.T) {
	m, _, _, _ := newTestManager(t, ManagerConfig{DefaultPolicy: models.DefaultPolicy})
	ctx := context.Background()

	assert.Error(t, m.SetPolicy(ctx, "unknown", models.PolicyTrackedOnly))
	assert.Error(t, m.SetPolicy(ctx, "unknown", models.FilterPolicy(42)))
}

func TestManager_StaleSweep(t *testing.T) {
	m, _, sink, _ := newTestManager(t, ManagerConfig{
		DefaultPolicy: models.DefaultPolicy,
		StaleAfter:    5 * time.Millisecond,
		SweepInterval: time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, Update{TargetID: "a", Status: testStatus(models.ConfidenceTracked)}))
	require.Len(t, sink.events, 1)

	time.Sleep(10 * time.Millisecond)
	m.sweepStale(ctx)

	// Молчание трекера дает синтетический NotObserved и переход Lost
	require.Len(t, sink.events, 2)
	assert.Equal(t, models.TransitionLost, sink.events[1].Kind)
	assert.Equal(t, 0, m.Stats()["targets_rendered"])

	// Повторная проверка не генерирует новых переходов
	m.sweepStale(ctx)
	assert.Len(t, sink.events, 2)
}
