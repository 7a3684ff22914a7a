package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// ErrUpstreamUnavailable marks a transient upstream failure (gateway errors,
// service unavailable) that is safe to retry.
var ErrUpstreamUnavailable = errors.New("upstream temporarily unavailable")

// WellnessProvider is the driven port for the remote wellness platform.
// Authenticate performs the login handshake and returns a session bound to
// the account. It returns an error wrapping model.ErrAuthentication when the
// platform rejects the credentials.
type WellnessProvider interface {
	Authenticate(ctx context.Context, username, password string) (WellnessSession, error)
}

// WellnessSession fetches raw, loosely typed JSON payloads for an
// authenticated account. Payloads are decoded with numbers preserved as
// json.Number. A nil payload with a nil error means the platform has no data.
type WellnessSession interface {
	// FetchActivities returns up to limit most recent activities, newest first.
	FetchActivities(ctx context.Context, start, limit int) ([]any, error)

	// Fetch returns the payload of the given kind for a calendar day.
	Fetch(ctx context.Context, kind model.DataKind, day time.Time) (any, error)
}
