package model

import "time"

// SyncResult reports what a single sync run persisted.
type SyncResult struct {
	UserID              string
	ActivitiesSynced    int
	HealthMetricsSynced int
	SyncPeriodDays      int
}

// SyncStatus describes a user's credential presence and sync watermarks.
// Latest timestamps are nil when nothing has been synced yet.
type SyncStatus struct {
	UserID                string
	CredentialsConfigured bool
	LatestActivitySync    *time.Time
	LatestHealthSync      *time.Time
	TotalActivities       int
	TotalHealthMetrics    int
}

// SyncReady reports whether a sync can be attempted for the user.
func (s SyncStatus) SyncReady() bool {
	return s.CredentialsConfigured
}
