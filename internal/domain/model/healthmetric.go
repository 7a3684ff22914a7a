package model

import "time"

// HealthMetric is one day of a normalized health metric for a user.
// RecordedDate is always midnight UTC.
type HealthMetric struct {
	ID           string
	UserID       string
	MetricType   MetricType
	RecordedDate time.Time
	MetricData   map[string]any
	ProcessedAt  time.Time
}

// MetricSummary aggregates stored metrics of a single type over a window.
type MetricSummary struct {
	Count      int
	LatestDate time.Time
	LatestData map[string]any
}
