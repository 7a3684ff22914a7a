package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// HealthMetricStore defines the driven port for daily health metric persistence.
type HealthMetricStore interface {
	// InsertNew persists the metrics in a single transaction, skipping any
	// whose (UserID, MetricType, RecordedDate) already exists. Returns the
	// number of rows inserted.
	InsertNew(ctx context.Context, metrics []model.HealthMetric) (int, error)

	// ListByType returns the user's metrics of one type recorded on or after
	// since, newest first.
	ListByType(ctx context.Context, userID string, metricType model.MetricType, since time.Time) ([]model.HealthMetric, error)

	// ListSince returns all of the user's metrics recorded on or after since,
	// newest first.
	ListSince(ctx context.Context, userID string, since time.Time) ([]model.HealthMetric, error)

	// Stats returns the total number of metrics stored for the user and the
	// most recent processed_at, or nil if there are none.
	Stats(ctx context.Context, userID string) (int, *time.Time, error)
}
