package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HealthMetricStore = (*HealthMetricRepo)(nil)

// HealthMetricRepo is the SQLite implementation of the HealthMetricStore port interface.
// recorded_date is stored as a YYYY-MM-DD string so range filters compare lexically.
type HealthMetricRepo struct {
	db *DB
}

// NewHealthMetricRepo creates a new HealthMetricRepo backed by the given DB.
func NewHealthMetricRepo(db *DB) *HealthMetricRepo {
	return &HealthMetricRepo{db: db}
}

// InsertNew inserts the batch in one transaction, skipping metrics already
// stored for the same (user_id, metric_type, recorded_date).
func (r *HealthMetricRepo) InsertNew(ctx context.Context, metrics []model.HealthMetric) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const query = `
		INSERT INTO health_metrics (id, user_id, metric_type, recorded_date, metric_data, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, metric_type, recorded_date) DO NOTHING
	`

	inserted := 0
	for _, m := range metrics {
		data := m.MetricData
		if data == nil {
			data = map[string]any{}
		}
		dataJSON, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("marshal %s metric data: %w", m.MetricType, err)
		}

		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}

		res, err := tx.ExecContext(ctx, query,
			id, m.UserID, string(m.MetricType), formatDate(m.RecordedDate),
			string(dataJSON), formatTime(m.ProcessedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s metric for %s: %w", m.MetricType, formatDate(m.RecordedDate), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit health metrics: %w", err)
	}

	return inserted, nil
}

// ListByType returns the user's metrics of one type recorded on or after since, newest first.
func (r *HealthMetricRepo) ListByType(ctx context.Context, userID string, metricType model.MetricType, since time.Time) ([]model.HealthMetric, error) {
	const query = `
		SELECT id, user_id, metric_type, recorded_date, metric_data, processed_at
		FROM health_metrics
		WHERE user_id = ? AND metric_type = ? AND recorded_date >= ?
		ORDER BY recorded_date DESC
	`
	return r.query(ctx, query, userID, string(metricType), formatDate(since))
}

// ListSince returns all of the user's metrics recorded on or after since, newest first.
func (r *HealthMetricRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]model.HealthMetric, error) {
	const query = `
		SELECT id, user_id, metric_type, recorded_date, metric_data, processed_at
		FROM health_metrics
		WHERE user_id = ? AND recorded_date >= ?
		ORDER BY recorded_date DESC, metric_type
	`
	return r.query(ctx, query, userID, formatDate(since))
}

// Stats returns the user's metric count and latest processed_at.
func (r *HealthMetricRepo) Stats(ctx context.Context, userID string) (int, *time.Time, error) {
	return tableStats(ctx, r.db, "health_metrics", userID)
}

func (r *HealthMetricRepo) query(ctx context.Context, query string, args ...any) ([]model.HealthMetric, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query health metrics: %w", err)
	}
	defer rows.Close()

	var metrics []model.HealthMetric
	for rows.Next() {
		m, err := scanHealthMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health metrics: %w", err)
	}

	return metrics, nil
}

func scanHealthMetric(rows *sql.Rows) (model.HealthMetric, error) {
	var (
		m                      model.HealthMetric
		metricType             string
		recordedDate, dataJSON string
		processedAt            string
	)
	if err := rows.Scan(&m.ID, &m.UserID, &metricType, &recordedDate, &dataJSON, &processedAt); err != nil {
		return model.HealthMetric{}, fmt.Errorf("scan health metric: %w", err)
	}
	m.MetricType = model.MetricType(metricType)

	var err error
	if m.RecordedDate, err = time.Parse(dateLayout, recordedDate); err != nil {
		return model.HealthMetric{}, fmt.Errorf("parse recorded_date %q: %w", recordedDate, err)
	}
	if m.ProcessedAt, err = parseTime(processedAt); err != nil {
		return model.HealthMetric{}, fmt.Errorf("parse processed_at: %w", err)
	}
	if m.MetricData, err = decodeObject(dataJSON); err != nil {
		return model.HealthMetric{}, fmt.Errorf("decode %s metric data: %w", metricType, err)
	}

	return m, nil
}
