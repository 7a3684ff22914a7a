package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
	"github.com/ericfisherdev/garminsync/internal/observability"
)

// MaxMetricDays caps how many days of health metrics one sync fetches,
// whatever activity window was requested.
const MaxMetricDays = 30

// CredentialSource yields decrypted credentials for a user.
type CredentialSource interface {
	Retrieve(ctx context.Context, userID string) (*model.Credentials, error)
	HasCredentials(ctx context.Context, userID string) (bool, error)
}

// WellnessClient is the per-user upstream client a sync drives.
type WellnessClient interface {
	Authenticate(ctx context.Context, username, password string) bool
	GetActivities(ctx context.Context, start time.Time, limit int) ([]any, error)
	GetMetric(ctx context.Context, metricType model.MetricType, day time.Time) (any, error)
}

// SyncService pulls a user's activities and daily metrics from the wellness
// platform and persists whatever is new.
type SyncService struct {
	credentials CredentialSource
	newClient   func(userID string) WellnessClient
	activities  driven.ActivityStore
	metrics     driven.HealthMetricStore
	now         func() time.Time
}

// NewSyncService creates a SyncService. newClient must return a fresh,
// unauthenticated client on every call.
func NewSyncService(
	credentials CredentialSource,
	newClient func(userID string) WellnessClient,
	activities driven.ActivityStore,
	metrics driven.HealthMetricStore,
) *SyncService {
	return &SyncService{
		credentials: credentials,
		newClient:   newClient,
		activities:  activities,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Sync fetches the last days of activities and up to MaxMetricDays of daily
// metrics, oldest work last. Activities commit in one transaction and each
// day of metrics in its own, so a failure part way keeps earlier days.
// Missing credentials fail with model.ErrNoCredentials before any upstream
// call; a rejected login fails with model.ErrAuthentication.
func (s *SyncService) Sync(ctx context.Context, userID string, days int) (result *model.SyncResult, err error) {
	if days < 1 {
		return nil, fmt.Errorf("sync window must be at least one day, got %d", days)
	}

	started := time.Now()
	defer func() {
		var activities, metrics int
		if result != nil {
			activities, metrics = result.ActivitiesSynced, result.HealthMetricsSynced
		}
		observability.RecordSync(err, time.Since(started), activities, metrics)
	}()

	creds, err := s.credentials.Retrieve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	if creds == nil {
		return nil, model.ErrNoCredentials
	}

	client := s.newClient(userID)
	if !client.Authenticate(ctx, creds.Username, creds.Password) {
		return nil, model.ErrAuthentication
	}

	now := s.now().UTC()
	result = &model.SyncResult{UserID: userID, SyncPeriodDays: days}

	result.ActivitiesSynced, err = s.syncActivities(ctx, client, userID, now, days)
	if err != nil {
		return nil, err
	}

	metricDays := min(days, MaxMetricDays)
	for offset := range metricDays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.syncDay(ctx, client, userID, now, now.AddDate(0, 0, -offset))
		if err != nil {
			return nil, err
		}
		result.HealthMetricsSynced += n
	}

	slog.Info("sync complete",
		"user_id", userID,
		"activities", result.ActivitiesSynced,
		"health_metrics", result.HealthMetricsSynced,
		"days", days,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return result, nil
}

func (s *SyncService) syncActivities(ctx context.Context, client WellnessClient, userID string, now time.Time, days int) (int, error) {
	raws, err := client.GetActivities(ctx, now.AddDate(0, 0, -days), DefaultActivityLimit)
	if err != nil {
		return 0, err
	}

	activities := NormalizeActivities(raws)
	for i := range activities {
		activities[i].UserID = userID
		activities[i].ProcessedAt = now
	}

	inserted, err := s.activities.InsertNew(ctx, activities)
	if err != nil {
		return 0, fmt.Errorf("persist activities: %w", err)
	}
	return inserted, nil
}

// syncDay fetches the four metric kinds for day in order and commits them as
// one batch.
func (s *SyncService) syncDay(ctx context.Context, client WellnessClient, userID string, now, day time.Time) (int, error) {
	batch := make([]model.HealthMetric, 0, len(model.MetricTypes))

	for _, metricType := range model.MetricTypes {
		raw, err := client.GetMetric(ctx, metricType, day)
		if err != nil {
			return 0, fmt.Errorf("fetch %s for %s: %w", metricType, day.Format(time.DateOnly), err)
		}
		if raw == nil {
			continue
		}

		metric, err := NormalizeMetric(metricType, raw, day)
		if err != nil {
			observability.RecordNormalizationFailure(string(metricType))
			slog.Warn("skipping metric normalization",
				"user_id", userID,
				"metric_type", metricType,
				"date", day.Format(time.DateOnly),
				"error", err,
			)
			continue
		}
		metric.UserID = userID
		metric.ProcessedAt = now
		batch = append(batch, metric)
	}

	inserted, err := s.metrics.InsertNew(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("persist health metrics for %s: %w", day.Format(time.DateOnly), err)
	}
	return inserted, nil
}

// Status reports credential presence and sync watermarks for the user.
func (s *SyncService) Status(ctx context.Context, userID string) (*model.SyncStatus, error) {
	configured, err := s.credentials.HasCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check credentials: %w", err)
	}

	activityCount, activityLatest, err := s.activities.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	metricCount, metricLatest, err := s.metrics.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.SyncStatus{
		UserID:                userID,
		CredentialsConfigured: configured,
		LatestActivitySync:    activityLatest,
		LatestHealthSync:      metricLatest,
		TotalActivities:       activityCount,
		TotalHealthMetrics:    metricCount,
	}, nil
}

// Activities lists stored activities started within the last days, newest first.
func (s *SyncService) Activities(ctx context.Context, userID, activityType string, days, limit int) ([]model.Activity, error) {
	return s.activities.List(ctx, model.ActivityFilter{
		UserID:       userID,
		ActivityType: activityType,
		Since:        s.now().UTC().AddDate(0, 0, -days),
		Limit:        limit,
	})
}

// Metrics lists stored metrics of one type recorded within the last days.
func (s *SyncService) Metrics(ctx context.Context, userID string, metricType model.MetricType, days int) ([]model.HealthMetric, error) {
	if !metricType.Valid() {
		return nil, fmt.Errorf("%w: unknown metric type %q", ErrInvalidMetricType, metricType)
	}
	return s.metrics.ListByType(ctx, userID, metricType, s.now().UTC().AddDate(0, 0, -days))
}

// ErrInvalidMetricType is returned for metric types outside model.MetricTypes.
var ErrInvalidMetricType = errors.New("invalid metric type")

// Summary groups the user's metrics from the last days by type. It returns
// the per-type summaries and the total number of metrics considered.
func (s *SyncService) Summary(ctx context.Context, userID string, days int) (map[model.MetricType]model.MetricSummary, int, error) {
	metrics, err := s.metrics.ListSince(ctx, userID, s.now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return nil, 0, err
	}

	summary := make(map[model.MetricType]model.MetricSummary)
	for _, m := range metrics {
		entry, seen := summary[m.MetricType]
		entry.Count++
		if !seen || m.RecordedDate.After(entry.LatestDate) {
			entry.LatestDate = m.RecordedDate
			entry.LatestData = m.MetricData
		}
		summary[m.MetricType] = entry
	}
	return summary, len(metrics), nil
}
