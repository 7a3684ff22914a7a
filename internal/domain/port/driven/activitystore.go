package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// ActivityStore defines the driven port for activity persistence.
type ActivityStore interface {
	// InsertNew persists the activities in a single transaction, skipping any
	// whose (UserID, ActivityID) already exists. Existing rows are never
	// modified. Returns the number of rows inserted.
	InsertNew(ctx context.Context, activities []model.Activity) (int, error)

	// List returns activities matching the filter, newest start time first.
	List(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)

	// Stats returns the total number of activities stored for the user and
	// the most recent processed_at, or nil if there are none.
	Stats(ctx context.Context, userID string) (int, *time.Time, error)
}
