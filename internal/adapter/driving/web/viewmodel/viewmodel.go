// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// UserPageViewModel holds everything the user status page renders.
type UserPageViewModel struct {
	UserID                string
	CredentialsConfigured bool
	SyncReady             bool
	LatestActivitySync    string // "never" when nothing has been synced
	LatestHealthSync      string
	TotalActivities       int
	TotalHealthMetrics    int

	Activities   []ActivityRowViewModel
	Metrics      []MetricSummaryViewModel
	SummaryDays  int
	ActivityDays int

	SyncActionURL string
	CSRFToken     string
	Notice        *NoticeViewModel
}

// ActivityRowViewModel is one row of the recent activities table.
type ActivityRowViewModel struct {
	Name      string
	Type      string
	StartTime string
	Duration  string
	Distance  string
	AvgHR     string
	NotesHTML string // sanitized HTML rendered from the activity description
}

// MetricSummaryViewModel is one row of the health metric summary table.
type MetricSummaryViewModel struct {
	Label      string
	Count      int
	LatestDate string
}

// NoticeViewModel is a one-off banner shown after a manual sync.
type NoticeViewModel struct {
	Message string
	IsError bool
}
