package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

func makeMetric(userID string, metricType model.MetricType, recorded time.Time, data map[string]any) model.HealthMetric {
	return model.HealthMetric{
		UserID:       userID,
		MetricType:   metricType,
		RecordedDate: recorded,
		MetricData:   data,
		ProcessedAt:  time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestHealthMetricRepo_InsertNewAndListByType(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHealthMetricRepo(db)
	ctx := context.Background()

	n, err := repo.InsertNew(ctx, []model.HealthMetric{
		makeMetric("user1", model.MetricHeartRate, day(2024, 3, 14), map[string]any{"resting_hr": json.Number("52")}),
		makeMetric("user1", model.MetricHeartRate, day(2024, 3, 15), map[string]any{"resting_hr": json.Number("50")}),
		makeMetric("user1", model.MetricSleep, day(2024, 3, 15), map[string]any{"deep_seconds": json.Number("3600")}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := repo.ListByType(ctx, "user1", model.MetricHeartRate, day(2024, 3, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].RecordedDate.Equal(day(2024, 3, 15)))
	assert.Equal(t, json.Number("50"), got[0].MetricData["resting_hr"])
	assert.Equal(t, model.MetricHeartRate, got[0].MetricType)

	got, err = repo.ListByType(ctx, "user1", model.MetricHeartRate, day(2024, 3, 15))
	require.NoError(t, err)
	assert.Len(t, got, 1, "since is inclusive")
}

func TestHealthMetricRepo_InsertNewIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHealthMetricRepo(db)
	ctx := context.Background()

	batch := []model.HealthMetric{
		makeMetric("user1", model.MetricStress, day(2024, 3, 15), map[string]any{"avg_stress": json.Number("30")}),
	}
	n, err := repo.InsertNew(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	batch[0].MetricData = map[string]any{"avg_stress": json.Number("99")}
	n, err = repo.InsertNew(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.ListByType(ctx, "user1", model.MetricStress, day(2024, 3, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, json.Number("30"), got[0].MetricData["avg_stress"])
}

func TestHealthMetricRepo_ListSince(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHealthMetricRepo(db)
	ctx := context.Background()

	_, err := repo.InsertNew(ctx, []model.HealthMetric{
		makeMetric("user1", model.MetricHeartRate, day(2024, 3, 1), nil),
		makeMetric("user1", model.MetricSleep, day(2024, 3, 14), nil),
		makeMetric("user1", model.MetricStress, day(2024, 3, 15), nil),
		makeMetric("user2", model.MetricStress, day(2024, 3, 15), nil),
	})
	require.NoError(t, err)

	got, err := repo.ListSince(ctx, "user1", day(2024, 3, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.MetricStress, got[0].MetricType)
	assert.Equal(t, model.MetricSleep, got[1].MetricType)
	assert.NotNil(t, got[0].MetricData)
}

func TestHealthMetricRepo_RollbackOnFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHealthMetricRepo(db)
	ctx := context.Background()

	bad := makeMetric("user1", model.MetricSleep, day(2024, 3, 15), map[string]any{"bad": make(chan int)})
	_, err := repo.InsertNew(ctx, []model.HealthMetric{
		makeMetric("user1", model.MetricHeartRate, day(2024, 3, 15), nil),
		bad,
	})
	require.Error(t, err)

	count, _, err := repo.Stats(ctx, "user1")
	require.NoError(t, err)
	assert.Zero(t, count, "a failed batch must leave no rows behind")
}

func TestHealthMetricRepo_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHealthMetricRepo(db)
	ctx := context.Background()

	_, err := repo.InsertNew(ctx, []model.HealthMetric{
		makeMetric("user1", model.MetricHeartRate, day(2024, 3, 14), nil),
		makeMetric("user1", model.MetricSleep, day(2024, 3, 14), nil),
	})
	require.NoError(t, err)

	count, latest, err := repo.Stats(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NotNil(t, latest)
}
