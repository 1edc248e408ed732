package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arvista/argate-backend/internal/config"
	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

const (
	// Геопространственный индекс якорей целей
	TargetsGeoKey = "targets:geo"

	// Множество всех известных целей
	TargetsSetKey = "targets:all"

	// Префиксы ключей
	TargetPrefix      = "target:"      // target:{id} - hash с состоянием цели
	TransitionsPrefix = "transitions:" // transitions:{id} - список последних переходов

	// TTL для данных
	TargetTTL = 12 * time.Hour

	// Максимум переходов в списке на цель
	MaxTransitionHistory = 99
)

// RedisRepository репозиторий для работы с Redis
type RedisRepository struct {
	client *redis.Client
	logger *utils.Logger
	config *config.RedisConfig
}

// NewRedisRepository создает новый Redis репозиторий
func NewRedisRepository(cfg *config.RedisConfig, logger *utils.Logger) (*RedisRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Парсим Redis URL
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opt)

	return &RedisRepository{
		client: client,
		logger: logger,
		config: cfg,
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// GetClient возвращает низкоуровневый клиент (для тестов)
func (r *RedisRepository) GetClient() *redis.Client {
	return r.client
}

// SaveTarget сохраняет состояние цели и обновляет геоиндекс якоря
func (r *RedisRepository) SaveTarget(ctx context.Context, target *models.Target) error {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("save_target").Observe(time.Since(start).Seconds())
	}()

	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	key := TargetPrefix + target.ID

	fields := map[string]interface{}{
		"id":          target.ID,
		"name":        target.Name,
		"policy":      target.Policy.String(),
		"rendered":    strconv.FormatBool(target.Rendered),
		"confidence":  target.LastStatus.Confidence.String(),
		"info":        target.LastStatus.Info.String(),
		"transition":  string(target.LastTransition),
		"last_update": target.LastUpdate.Unix(),
	}
	if target.Anchor != nil {
		fields["anchor_lat"] = target.Anchor.Latitude
		fields["anchor_lon"] = target.Anchor.Longitude
		fields["anchor_alt"] = target.Anchor.Altitude
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, TargetTTL)
	pipe.SAdd(ctx, TargetsSetKey, target.ID)

	if target.Anchor != nil {
		pipe.GeoAdd(ctx, TargetsGeoKey, &redis.GeoLocation{
			Name:      target.ID,
			Latitude:  target.Anchor.Latitude,
			Longitude: target.Anchor.Longitude,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("save_target").Inc()
		return fmt.Errorf("failed to save target %s: %w", target.ID, err)
	}

	return nil
}

// GetTarget возвращает состояние цели по идентификатору
func (r *RedisRepository) GetTarget(ctx context.Context, targetID string) (*models.Target, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("get_target").Observe(time.Since(start).Seconds())
	}()

	data, err := r.client.HGetAll(ctx, TargetPrefix+targetID).Result()
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_target").Inc()
		return nil, fmt.Errorf("failed to get target %s: %w", targetID, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return r.mapToTarget(targetID, data)
}

// GetAllTargets возвращает все известные цели
func (r *RedisRepository) GetAllTargets(ctx context.Context) ([]*models.Target, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("get_all_targets").Observe(time.Since(start).Seconds())
	}()

	ids, err := r.client.SMembers(ctx, TargetsSetKey).Result()
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_all_targets").Inc()
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	targets := make([]*models.Target, 0, len(ids))
	for _, id := range ids {
		target, err := r.GetTarget(ctx, id)
		if err != nil {
			r.logger.WithFields(map[string]interface{}{
				"target": id,
				"error":  err,
			}).Warn("Failed to load target, skipping")
			continue
		}
		if target == nil {
			// Hash истек по TTL, подчищаем множество
			r.client.SRem(ctx, TargetsSetKey, id)
			continue
		}
		targets = append(targets, target)
	}

	return targets, nil
}

// GetTargetsInRadius возвращает цели, якоря которых попадают в радиус
func (r *RedisRepository) GetTargetsInRadius(ctx context.Context, center models.GeoPoint, radiusKM float64) ([]*models.Target, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("get_targets_in_radius").Observe(time.Since(start).Seconds())
	}()

	locations, err := r.client.GeoSearchLocation(ctx, TargetsGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusKM,
			RadiusUnit: "km",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_targets_in_radius").Inc()
		return nil, fmt.Errorf("failed to search targets in radius: %w", err)
	}

	targets := make([]*models.Target, 0, len(locations))
	for _, loc := range locations {
		target, err := r.GetTarget(ctx, loc.Name)
		if err != nil || target == nil {
			continue
		}
		targets = append(targets, target)
	}

	return targets, nil
}

// DeleteTarget удаляет цель из всех индексов
func (r *RedisRepository) DeleteTarget(ctx context.Context, targetID string) error {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("delete_target").Observe(time.Since(start).Seconds())
	}()

	pipe := r.client.Pipeline()
	pipe.Del(ctx, TargetPrefix+targetID)
	pipe.Del(ctx, TransitionsPrefix+targetID)
	pipe.SRem(ctx, TargetsSetKey, targetID)
	pipe.ZRem(ctx, TargetsGeoKey, targetID)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("delete_target").Inc()
		return fmt.Errorf("failed to delete target %s: %w", targetID, err)
	}

	return nil
}

// AppendTransition добавляет переход в список последних переходов цели
func (r *RedisRepository) AppendTransition(ctx context.Context, event *models.TransitionEvent) error {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("append_transition").Observe(time.Since(start).Seconds())
	}()

	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid transition: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	key := TransitionsPrefix + event.TargetID

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, MaxTransitionHistory)
	pipe.Expire(ctx, key, TargetTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("append_transition").Inc()
		return fmt.Errorf("failed to append transition for %s: %w", event.TargetID, err)
	}

	return nil
}

// GetTransitions возвращает последние переходы цели, от новых к старым
func (r *RedisRepository) GetTransitions(ctx context.Context, targetID string, limit int) ([]*models.TransitionEvent, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("get_transitions").Observe(time.Since(start).Seconds())
	}()

	if limit <= 0 || limit > MaxTransitionHistory+1 {
		limit = MaxTransitionHistory + 1
	}

	items, err := r.client.LRange(ctx, TransitionsPrefix+targetID, 0, int64(limit-1)).Result()
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_transitions").Inc()
		return nil, fmt.Errorf("failed to get transitions for %s: %w", targetID, err)
	}

	events := make([]*models.TransitionEvent, 0, len(items))
	for _, item := range items {
		var event models.TransitionEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			r.logger.WithFields(map[string]interface{}{
				"target": targetID,
				"error":  err,
			}).Warn("Failed to unmarshal transition, skipping")
			continue
		}
		events = append(events, &event)
	}

	return events, nil
}

// GetStats возвращает статистику хранилища
func (r *RedisRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	total, err := r.client.SCard(ctx, TargetsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count targets: %w", err)
	}

	geoCount, err := r.client.ZCard(ctx, TargetsGeoKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count geo anchors: %w", err)
	}

	return map[string]interface{}{
		"targets_total":   total,
		"anchors_indexed": geoCount,
	}, nil
}

// mapToTarget восстанавливает цель из Redis hash
func (r *RedisRepository) mapToTarget(targetID string, data map[string]string) (*models.Target, error) {
	target := &models.Target{
		ID:   targetID,
		Name: data["name"],
	}

	policy, err := models.ParsePolicy(data["policy"])
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", targetID, err)
	}
	target.Policy = policy

	confidence, err := models.ParseConfidence(data["confidence"])
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", targetID, err)
	}
	info, err := models.ParseStatusInfo(data["info"])
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", targetID, err)
	}
	target.LastStatus = models.TargetStatus{Confidence: confidence, Info: info}

	target.Rendered, _ = strconv.ParseBool(data["rendered"])
	target.LastTransition = models.TransitionKind(data["transition"])

	if ts, err := strconv.ParseInt(data["last_update"], 10, 64); err == nil {
		target.LastUpdate = time.Unix(ts, 0)
		target.LastStatus.Timestamp = target.LastUpdate
	}

	if latStr, ok := data["anchor_lat"]; ok {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(data["anchor_lon"], 64)
		if latErr == nil && lonErr == nil {
			alt, _ := strconv.ParseInt(data["anchor_alt"], 10, 32)
			target.Anchor = &models.GeoPoint{
				Latitude:  lat,
				Longitude: lon,
				Altitude:  int32(alt),
			}
		}
	}

	return target, nil
}
