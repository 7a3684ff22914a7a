package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
	"github.com/ericfisherdev/garminsync/internal/observability"
)

// DefaultActivityLimit is how many recent activities are requested when the
// caller does not specify a limit.
const DefaultActivityLimit = 100

// SyncClientConfig holds the request budget for upstream clients.
type SyncClientConfig struct {
	// Namespace prefixes the shared limiter key: "{Namespace}:{user_id}".
	Namespace   string
	RateLimit   int
	RateWindow  time.Duration
	MinInterval time.Duration
	Retry       RetryPolicy
}

// DefaultSyncClientConfig allows 60 requests per minute per user, spaced at
// least one second apart.
func DefaultSyncClientConfig() SyncClientConfig {
	return SyncClientConfig{
		Namespace:   "garmin_api",
		RateLimit:   60,
		RateWindow:  time.Minute,
		MinInterval: time.Second,
		Retry:       DefaultRetryPolicy(),
	}
}

// SyncClient talks to the wellness platform on behalf of one user. It starts
// unauthenticated; a successful Authenticate is the only transition and there
// is no way back short of building a new client.
//
// Every operation first draws from the shared per-user budget, then waits
// out the process-local minimum spacing before each outbound request.
// A SyncClient is not safe for concurrent use.
type SyncClient struct {
	provider driven.WellnessProvider
	limiter  driven.RateLimiter
	userID   string
	cfg      SyncClientConfig
	spacing  *rate.Limiter
	now      func() time.Time
	session  driven.WellnessSession
}

// NewSyncClient creates an unauthenticated client for userID.
func NewSyncClient(provider driven.WellnessProvider, limiter driven.RateLimiter, userID string, cfg SyncClientConfig) *SyncClient {
	every := rate.Inf
	if cfg.MinInterval > 0 {
		every = rate.Every(cfg.MinInterval)
	}
	return &SyncClient{
		provider: provider,
		limiter:  limiter,
		userID:   userID,
		cfg:      cfg,
		spacing:  rate.NewLimiter(every, 1),
		now:      time.Now,
	}
}

// Authenticated reports whether Authenticate has succeeded.
func (c *SyncClient) Authenticated() bool {
	return c.session != nil
}

func (c *SyncClient) rateKey() string {
	return fmt.Sprintf("%s:%s", c.cfg.Namespace, c.userID)
}

// allow records one request against the user's shared budget.
func (c *SyncClient) allow(ctx context.Context) (bool, error) {
	allowed, err := c.limiter.IsAllowed(ctx, c.rateKey(), c.cfg.RateLimit, c.cfg.RateWindow)
	if err != nil {
		return false, err
	}
	observability.RecordRateLimit(allowed)
	return allowed, nil
}

// Authenticate logs in and performs one validation read. It never returns an
// error: rejected credentials, an exhausted budget or any upstream failure
// are logged and reported as false.
func (c *SyncClient) Authenticate(ctx context.Context, username, password string) bool {
	allowed, err := c.allow(ctx)
	if err != nil {
		slog.Error("rate limit check failed", "user_id", c.userID, "error", err)
		return false
	}
	if !allowed {
		slog.Warn("rate limit exceeded for authentication", "user_id", c.userID)
		return false
	}

	if err := c.spacing.Wait(ctx); err != nil {
		return false
	}
	session, err := c.provider.Authenticate(ctx, username, password)
	if err != nil {
		slog.Error("failed to authenticate with Garmin Connect", "user_id", c.userID, "error", err)
		return false
	}

	if err := c.spacing.Wait(ctx); err != nil {
		return false
	}
	if _, err := session.Fetch(ctx, model.DataKindUserSummary, c.now()); err != nil {
		slog.Error("Garmin Connect validation call failed", "user_id", c.userID, "error", err)
		return false
	}

	c.session = session
	slog.Info("authenticated with Garmin Connect", "user_id", c.userID)
	return true
}

// GetActivities fetches up to limit recent activities and keeps those whose
// startTimeLocal is at or after start. Items with a missing or unparseable
// timestamp are dropped with a warning.
func (c *SyncClient) GetActivities(ctx context.Context, start time.Time, limit int) ([]any, error) {
	if c.session == nil {
		return nil, model.ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	allowed, err := c.allow(ctx)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		return nil, model.ErrRateLimitExceeded
	}

	items, err := Retry(ctx, c.cfg.Retry, func() ([]any, error) {
		if err := c.spacing.Wait(ctx); err != nil {
			return nil, err
		}
		return c.session.FetchActivities(ctx, 0, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch activities: %w", err)
	}

	filtered := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			slog.Warn("dropping activity without object payload", "user_id", c.userID)
			continue
		}
		startedAt, ok := parseISOTime(obj["startTimeLocal"])
		if !ok {
			slog.Warn("dropping activity with invalid start time",
				"user_id", c.userID,
				"activity_id", stringify(obj["activityId"]),
				"start_time", obj["startTimeLocal"],
			)
			continue
		}
		if startedAt.Before(start) {
			continue
		}
		filtered = append(filtered, item)
	}

	slog.Info("retrieved activities from Garmin Connect",
		"user_id", c.userID,
		"fetched", len(items),
		"kept", len(filtered),
	)
	return filtered, nil
}

var metricKinds = map[model.MetricType]model.DataKind{
	model.MetricHeartRate:       model.DataKindHeartRate,
	model.MetricSleep:           model.DataKindSleep,
	model.MetricBodyComposition: model.DataKindBodyComposition,
	model.MetricStress:          model.DataKindStress,
}

// GetMetric fetches one day of metricType. A rejected budget, exhausted
// retries or a non-retryable failure all yield nil with no error, so a
// missing day never aborts a sync. Only ErrNotAuthenticated is returned.
func (c *SyncClient) GetMetric(ctx context.Context, metricType model.MetricType, day time.Time) (any, error) {
	if c.session == nil {
		return nil, model.ErrNotAuthenticated
	}
	kind, ok := metricKinds[metricType]
	if !ok {
		return nil, fmt.Errorf("unknown metric type %q", metricType)
	}
	date := day.Format(time.DateOnly)

	allowed, err := c.allow(ctx)
	if err != nil {
		slog.Warn("rate limit check failed", "user_id", c.userID, "metric_type", metricType, "date", date, "error", err)
		return nil, nil
	}
	if !allowed {
		slog.Warn("rate limit exceeded, skipping metric", "user_id", c.userID, "metric_type", metricType, "date", date)
		return nil, nil
	}

	payload, err := Retry(ctx, c.cfg.Retry, func() (any, error) {
		if err := c.spacing.Wait(ctx); err != nil {
			return nil, err
		}
		return c.session.Fetch(ctx, kind, day)
	})
	if err != nil {
		slog.Warn("failed to fetch metric", "user_id", c.userID, "metric_type", metricType, "date", date, "error", err)
		return nil, nil
	}
	return payload, nil
}

// GetHeartRateData fetches the day's heart rate payload.
func (c *SyncClient) GetHeartRateData(ctx context.Context, day time.Time) (any, error) {
	return c.GetMetric(ctx, model.MetricHeartRate, day)
}

// GetSleepData fetches the day's sleep payload.
func (c *SyncClient) GetSleepData(ctx context.Context, day time.Time) (any, error) {
	return c.GetMetric(ctx, model.MetricSleep, day)
}

// GetBodyComposition fetches the day's body composition payload.
func (c *SyncClient) GetBodyComposition(ctx context.Context, day time.Time) (any, error) {
	return c.GetMetric(ctx, model.MetricBodyComposition, day)
}

// GetStressData fetches the day's stress payload.
func (c *SyncClient) GetStressData(ctx context.Context, day time.Time) (any, error) {
	return c.GetMetric(ctx, model.MetricStress, day)
}
