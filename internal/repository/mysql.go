package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/arvista/argate-backend/internal/config"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/pkg/utils"
)

// MySQLRepository долговременный журнал переходов видимости
type MySQLRepository struct {
	db     *sql.DB
	logger *utils.Logger
	config *config.MySQLConfig
}

// NewMySQLRepository создает новый MySQL репозиторий
func NewMySQLRepository(cfg *config.MySQLConfig, logger *utils.Logger) (*MySQLRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Настройки connection pool
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	return &MySQLRepository{
		db:     db,
		logger: logger,
		config: cfg,
	}, nil
}

// Ping проверяет соединение с MySQL
func (r *MySQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает соединение с MySQL
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

// SaveTransitionsBatch сохраняет пачку переходов одним INSERT
func (r *MySQLRepository) SaveTransitionsBatch(ctx context.Context, events []*models.TransitionEvent) error {
	if len(events) == 0 {
		return nil
	}

	const fieldsPerRecord = 7

	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*fieldsPerRecord)

	for _, event := range events {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")

		var lat, lon interface{}
		if event.Anchor != nil {
			lat = event.Anchor.Latitude
			lon = event.Anchor.Longitude
		}

		args = append(args,
			event.TargetID,
			string(event.Kind),
			event.Status.Confidence.String(),
			event.Status.Info.String(),
			lat,
			lon,
			event.At,
		)
	}

	query := "INSERT INTO transitions (target_id, kind, confidence, info, anchor_lat, anchor_lon, occurred_at) VALUES " +
		strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert transitions batch: %w", err)
	}

	r.logger.WithField("count", len(events)).Debug("Saved transitions batch to MySQL")
	return nil
}

// LoadTransitions возвращает историю переходов цели, от новых к старым
func (r *MySQLRepository) LoadTransitions(ctx context.Context, targetID string, limit int) ([]*models.TransitionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT target_id, kind, confidence, info, anchor_lat, anchor_lon, occurred_at FROM transitions WHERE target_id = ? ORDER BY occurred_at DESC LIMIT ?",
		targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	events := make([]*models.TransitionEvent, 0, limit)
	for rows.Next() {
		var (
			event      models.TransitionEvent
			kind       string
			confidence string
			info       string
			lat, lon   sql.NullFloat64
		)

		if err := rows.Scan(&event.TargetID, &kind, &confidence, &info, &lat, &lon, &event.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}

		event.Kind = models.TransitionKind(kind)
		if c, err := models.ParseConfidence(confidence); err == nil {
			event.Status.Confidence = c
		}
		if i, err := models.ParseStatusInfo(info); err == nil {
			event.Status.Info = i
		}
		event.Status.Timestamp = event.At

		if lat.Valid && lon.Valid {
			event.Anchor = &models.GeoPoint{Latitude: lat.Float64, Longitude: lon.Float64}
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}
