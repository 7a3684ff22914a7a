package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// Syncer runs a single user sync.
type Syncer interface {
	Sync(ctx context.Context, userID string, days int) (*model.SyncResult, error)
}

// UserLister lists users eligible for a scheduled sync.
type UserLister interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// triggerRequest represents a manual sync trigger.
type triggerRequest struct {
	ctx    context.Context
	userID string
	done   chan triggerResult
}

type triggerResult struct {
	result *model.SyncResult
	err    error
}

// SyncScheduler runs syncs from a single loop: periodically for every user
// with active credentials, and on demand through Trigger. Syncs never overlap,
// so one process never spends a user's budget twice at once.
type SyncScheduler struct {
	syncer    Syncer
	users     UserLister
	days      int
	interval  time.Duration
	triggerCh chan triggerRequest
}

// NewSyncScheduler creates a scheduler syncing the last days for each user.
// An interval of zero disables periodic syncs; Trigger still works.
func NewSyncScheduler(syncer Syncer, users UserLister, days int, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		syncer:    syncer,
		users:     users,
		days:      days,
		interval:  interval,
		triggerCh: make(chan triggerRequest),
	}
}

// Start runs the scheduling loop until ctx is canceled. With periodic syncs
// enabled it runs an immediate cycle first.
func (s *SyncScheduler) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		s.syncAll(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-tick:
			s.syncAll(ctx)
		case req := <-s.triggerCh:
			req.done <- s.runTriggered(ctx, req)
		}
	}
}

// Trigger queues a sync for userID on the scheduler loop and blocks until it
// completes or ctx is canceled. The sync runs under ctx, so a caller that
// gives up also stops the upstream calls made on its behalf.
func (s *SyncScheduler) Trigger(ctx context.Context, userID string) (*model.SyncResult, error) {
	done := make(chan triggerResult, 1)
	req := triggerRequest{ctx: ctx, userID: userID, done: done}

	select {
	case s.triggerCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-done:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runTriggered runs a manual sync under the caller's context, canceled early
// if the scheduler itself stops.
func (s *SyncScheduler) runTriggered(loopCtx context.Context, req triggerRequest) triggerResult {
	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stop := context.AfterFunc(loopCtx, cancel)
	defer stop()

	result, err := s.syncer.Sync(ctx, req.userID, s.days)
	return triggerResult{result: result, err: err}
}

// syncAll syncs every user with active credentials. A failing user is logged
// and the cycle moves on.
func (s *SyncScheduler) syncAll(ctx context.Context) {
	start := time.Now()

	users, err := s.users.ActiveUsers(ctx)
	if err != nil {
		slog.Error("list users for sync failed", "error", err)
		return
	}

	var failures int
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.syncer.Sync(ctx, userID, s.days); err != nil {
			slog.Error("scheduled sync failed", "user_id", userID, "error", err)
			failures++
		}
	}

	slog.Info("sync cycle complete",
		"users", len(users),
		"errors", failures,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}
