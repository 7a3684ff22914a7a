package model

import (
	"encoding/json"
	"time"
)

// Activity is a normalized workout synced from the wellness platform.
// Optional numeric fields are nil when the upstream value was missing or
// not numeric. DistanceMeters keeps the upstream decimal text verbatim and is
// empty when absent.
type Activity struct {
	ID             string
	UserID         string
	ActivityID     string
	ActivityType   *string
	Name           string
	StartTime      *time.Time
	DurationSecs   *int64
	DistanceMeters json.Number
	Calories       *int64
	AvgHeartRate   *int64
	MaxHeartRate   *int64
	RawPayload     map[string]any
	ProcessedAt    time.Time
}

// ActivityFilter narrows an activity listing.
type ActivityFilter struct {
	UserID       string
	ActivityType string
	Since        time.Time
	Limit        int
}
