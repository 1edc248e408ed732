package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/arvista/argate-backend/internal/config"
	"github.com/arvista/argate-backend/internal/gate"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/internal/mqtt"
	"github.com/arvista/argate-backend/internal/repository"
	"github.com/arvista/argate-backend/pkg/utils"
)

// collectingSink собирает транслируемые события вместо WebSocket рассылки
type collectingSink struct {
	events []*models.TransitionEvent
}

func (s *collectingSink) BroadcastTransition(event *models.TransitionEvent) {
	s.events = append(s.events, event)
}

// PipelineTestSuite тестирует полный конвейер MQTT payload → парсер →
// менеджер → Redis. Требует запущенный Redis
type PipelineTestSuite struct {
	suite.Suite
	ctx         context.Context
	redisRepo   *repository.RedisRepository
	redisClient *redis.Client
	parser      *mqtt.Parser
	manager     *gate.GateManager
	sink        *collectingSink
	logger      *utils.Logger
}

func (suite *PipelineTestSuite) SetupSuite() {
	suite.ctx = context.Background()
	suite.logger = utils.NewLogger("error", "text")

	redisConfig := &config.RedisConfig{
		URL:          "redis://localhost:6379",
		DB:           14, // Отдельная DB для интеграционных тестов
		PoolSize:     10,
		MinIdleConns: 2,
	}

	var err error
	suite.redisRepo, err = repository.NewRedisRepository(redisConfig, suite.logger)
	require.NoError(suite.T(), err)

	suite.redisClient = suite.redisRepo.GetClient()
	if err := suite.redisClient.Ping(suite.ctx).Err(); err != nil {
		suite.T().Skip("Redis not available for integration testing: " + err.Error())
	}

	suite.parser = mqtt.NewParser(suite.logger)
}

func (suite *PipelineTestSuite) SetupTest() {
	require.NoError(suite.T(), suite.redisClient.FlushDB(suite.ctx).Err())

	suite.sink = &collectingSink{}
	suite.manager = gate.NewGateManager(gate.ManagerConfig{
		DefaultPolicy: models.DefaultPolicy,
		StaleAfter:    time.Minute,
		SweepInterval: time.Minute,
		AudioElements: true,
	}, suite.redisRepo, suite.sink, nil, suite.logger)
}

func (suite *PipelineTestSuite) TearDownSuite() {
	if suite.redisRepo != nil {
		suite.redisRepo.Close()
	}
}

// deliver прогоняет MQTT payload через парсер и менеджер
func (suite *PipelineTestSuite) deliver(targetID, payload string) {
	topic := fmt.Sprintf("ar/t/%s/status", targetID)
	msg, err := suite.parser.Parse(topic, []byte(payload))
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.manager.Apply(suite.ctx, gate.Update{
		TargetID:  msg.TargetID,
		Name:      msg.Name,
		Anchor:    msg.Anchor,
		Status:    msg.Status,
		Destroyed: msg.Destroyed,
	}))
}

func (suite *PipelineTestSuite) TestStatusFlow() {
	suite.deliver("anchor-1", `{"confidence":"tracked","name":"Lobby poster","anchor":{"lat":46.5,"lon":8.25}}`)

	// Цель сохранена в Redis с актуальным решением о видимости
	target, err := suite.redisRepo.GetTarget(suite.ctx, "anchor-1")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), target)
	suite.True(target.Rendered)
	suite.Equal(models.ConfidenceTracked, target.LastStatus.Confidence)
	suite.Equal("Lobby poster", target.Name)
	require.NotNil(suite.T(), target.Anchor)
	suite.InDelta(46.5, target.Anchor.Latitude, 1e-4)

	// Переход Found записан и транслирован
	transitions, err := suite.redisRepo.GetTransitions(suite.ctx, "anchor-1", 10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), transitions, 1)
	suite.Equal(models.TransitionFound, transitions[0].Kind)
	suite.True(transitions[0].First)

	require.Len(suite.T(), suite.sink.events, 1)

	// Потеря трекинга
	suite.deliver("anchor-1", `{"confidence":"not_observed"}`)

	target, err = suite.redisRepo.GetTarget(suite.ctx, "anchor-1")
	require.NoError(suite.T(), err)
	suite.False(target.Rendered)

	transitions, err = suite.redisRepo.GetTransitions(suite.ctx, "anchor-1", 10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), transitions, 2)
	// LPush: последнее событие первое
	suite.Equal(models.TransitionLost, transitions[0].Kind)
}

func (suite *PipelineTestSuite) TestRedundantStatusesProduceNoTransitions() {
	suite.deliver("anchor-2", `{"confidence":"tracked"}`)
	suite.deliver("anchor-2", `{"confidence":"extended_tracked"}`)
	suite.deliver("anchor-2", `{"confidence":"limited"}`)

	// Под политикой по умолчанию все три уровня видимы: один переход
	transitions, err := suite.redisRepo.GetTransitions(suite.ctx, "anchor-2", 10)
	require.NoError(suite.T(), err)
	suite.Len(transitions, 1)
}

func (suite *PipelineTestSuite) TestDestroyRemovesTarget() {
	suite.deliver("anchor-3", `{"confidence":"tracked"}`)
	suite.deliver("anchor-3", `{"destroyed":true}`)

	target, err := suite.redisRepo.GetTarget(suite.ctx, "anchor-3")
	require.NoError(suite.T(), err)
	suite.Nil(target)
}

func (suite *PipelineTestSuite) TestGeoSearch() {
	suite.deliver("near", `{"confidence":"tracked","anchor":{"lat":46.5,"lon":8.25}}`)
	suite.deliver("far", `{"confidence":"tracked","anchor":{"lat":48.0,"lon":11.0}}`)

	targets, err := suite.redisRepo.GetTargetsInRadius(suite.ctx, models.GeoPoint{Latitude: 46.5, Longitude: 8.3}, 25)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), targets, 1)
	suite.Equal("near", targets[0].ID)
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
