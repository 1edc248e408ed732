package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arvista/argate-backend/internal/gate"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/internal/repository"
	"github.com/arvista/argate-backend/pkg/utils"
)

// PolicyManager операции менеджера контроллеров, нужные REST API
type PolicyManager interface {
	SetPolicy(ctx context.Context, targetID string, policy models.FilterPolicy) error
	Stats() map[string]interface{}
}

// RESTHandler обрабатывает REST запросы
type RESTHandler struct {
	repository repository.Repository
	journal    repository.JournalRepository
	manager    PolicyManager
	logger     *utils.Logger
}

// NewRESTHandler создает REST handler
func NewRESTHandler(repo repository.Repository, journal repository.JournalRepository, manager PolicyManager, logger *utils.Logger) *RESTHandler {
	return &RESTHandler{
		repository: repo,
		journal:    journal,
		manager:    manager,
		logger:     logger,
	}
}

// targetJSON представление цели в API ответах
type targetJSON struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Policy         string   `json:"policy"`
	Rendered       bool     `json:"rendered"`
	Confidence     string   `json:"confidence"`
	Info           string   `json:"info"`
	LastTransition string   `json:"last_transition,omitempty"`
	LastUpdate     int64    `json:"last_update"`
	Lat            *float64 `json:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty"`
}

func targetToJSON(t *models.Target) targetJSON {
	out := targetJSON{
		ID:             t.ID,
		Name:           t.Name,
		Policy:         t.Policy.String(),
		Rendered:       t.Rendered,
		Confidence:     t.LastStatus.Confidence.String(),
		Info:           t.LastStatus.Info.String(),
		LastTransition: string(t.LastTransition),
		LastUpdate:     t.LastUpdate.UnixMilli(),
	}
	if t.Anchor != nil {
		out.Lat = &t.Anchor.Latitude
		out.Lon = &t.Anchor.Longitude
	}
	return out
}

func targetsToJSON(targets []*models.Target) []targetJSON {
	out := make([]targetJSON, 0, len(targets))
	for _, t := range targets {
		out = append(out, targetToJSON(t))
	}
	return out
}

// transitionJSON представление события перехода в API ответах
type transitionJSON struct {
	TargetID   string   `json:"target_id"`
	Kind       string   `json:"kind"`
	Confidence string   `json:"confidence"`
	Info       string   `json:"info"`
	First      bool     `json:"first,omitempty"`
	At         int64    `json:"at"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
}

func transitionsToJSON(events []*models.TransitionEvent) []transitionJSON {
	out := make([]transitionJSON, 0, len(events))
	for _, e := range events {
		item := transitionJSON{
			TargetID:   e.TargetID,
			Kind:       string(e.Kind),
			Confidence: e.Status.Confidence.String(),
			Info:       e.Status.Info.String(),
			First:      e.First,
			At:         e.At.UnixMilli(),
		}
		if e.Anchor != nil {
			item.Lat = &e.Anchor.Latitude
			item.Lon = &e.Anchor.Longitude
		}
		out = append(out, item)
	}
	return out
}

// GetTargets возвращает список целей. Параметры lat/lon/radius ограничивают
// выборку регионом; rendered=true оставляет только отображаемые цели
func (h *RESTHandler) GetTargets(c *gin.Context) {
	ctx := c.Request.Context()

	var targets []*models.Target
	var err error

	if c.Query("lat") != "" || c.Query("lon") != "" || c.Query("radius") != "" {
		center, radius, perr := parseRegion(c)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		targets, err = h.repository.GetTargetsInRadius(ctx, center, radius)
	} else {
		targets, err = h.repository.GetAllTargets(ctx)
	}

	if err != nil {
		h.logger.WithField("error", err).Error("Failed to get targets")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get targets"})
		return
	}

	if c.Query("rendered") == "true" {
		filtered := targets[:0]
		for _, t := range targets {
			if t.Rendered {
				filtered = append(filtered, t)
			}
		}
		targets = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"targets": targetsToJSON(targets),
		"count":   len(targets),
	})
}

// GetTarget возвращает одну цель с уровнями, разрешенными ее политикой
func (h *RESTHandler) GetTarget(c *gin.Context) {
	targetID := c.Param("id")

	target, err := h.repository.GetTarget(c.Request.Context(), targetID)
	if err != nil {
		h.logger.WithFields(map[string]interface{}{
			"target": targetID,
			"error":  err,
		}).Error("Failed to get target")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get target"})
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}

	levels := gate.AcceptedLevels(target.Policy)
	accepted := make([]string, 0, len(levels))
	for _, l := range levels {
		accepted = append(accepted, l.String())
	}

	c.JSON(http.StatusOK, gin.H{
		"target":          targetToJSON(target),
		"accepted_levels": accepted,
	})
}

// GetTransitions возвращает переходы цели. По умолчанию отдаются последние
// события из Redis; source=journal читает долговременный журнал MySQL
func (h *RESTHandler) GetTransitions(c *gin.Context) {
	targetID := c.Param("id")
	ctx := c.Request.Context()

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit (1-1000)"})
			return
		}
		limit = parsed
	}

	var events []*models.TransitionEvent
	var err error

	if c.Query("source") == "journal" && h.journal != nil {
		events, err = h.journal.LoadTransitions(ctx, targetID, limit)
	} else {
		events, err = h.repository.GetTransitions(ctx, targetID, limit)
	}

	if err != nil {
		h.logger.WithFields(map[string]interface{}{
			"target": targetID,
			"error":  err,
		}).Error("Failed to get transitions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get transitions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_id":   targetID,
		"transitions": transitionsToJSON(events),
		"count":       len(events),
	})
}

// GetSnapshot возвращает состояние всех целей одним ответом
func (h *RESTHandler) GetSnapshot(c *gin.Context) {
	ctx := c.Request.Context()

	targets, err := h.repository.GetAllTargets(ctx)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to get snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get snapshot"})
		return
	}

	rendered := 0
	for _, t := range targets {
		if t.Rendered {
			rendered++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"server_time": time.Now().UnixMilli(),
		"targets":     targetsToJSON(targets),
		"count":       len(targets),
		"rendered":    rendered,
	})
}

// GetStats возвращает статистику менеджера и хранилища
func (h *RESTHandler) GetStats(c *gin.Context) {
	stats := gin.H{}

	if h.manager != nil {
		stats["gate"] = h.manager.Stats()
	}

	if repoStats, err := h.repository.GetStats(c.Request.Context()); err == nil {
		stats["repository"] = repoStats
	}

	c.JSON(http.StatusOK, stats)
}

// policyRequest тело запроса смены политики
type policyRequest struct {
	Policy string `json:"policy" binding:"required"`
}

// PutPolicy меняет политику фильтрации цели (требует роль оператора)
func (h *RESTHandler) PutPolicy(c *gin.Context) {
	targetID := c.Param("id")

	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policy field is required"})
		return
	}

	policy, err := models.ParsePolicy(req.Policy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.SetPolicy(c.Request.Context(), targetID, policy); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"target": targetID,
		"policy": policy.String(),
	}).Info("Policy updated via API")

	c.JSON(http.StatusOK, gin.H{
		"target_id": targetID,
		"policy":    policy.String(),
	})
}

// parseRegion разбирает параметры региона lat/lon/radius
func parseRegion(c *gin.Context) (models.GeoPoint, float64, error) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return models.GeoPoint{}, 0, errInvalidRegion("invalid latitude")
	}

	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return models.GeoPoint{}, 0, errInvalidRegion("invalid longitude")
	}

	radius, err := strconv.ParseFloat(c.Query("radius"), 64)
	if err != nil || radius <= 0 || radius > 200 {
		return models.GeoPoint{}, 0, errInvalidRegion("invalid radius (1-200 km)")
	}

	return models.GeoPoint{Latitude: lat, Longitude: lon}, radius, nil
}

type errInvalidRegion string

func (e errInvalidRegion) Error() string { return string(e) }
