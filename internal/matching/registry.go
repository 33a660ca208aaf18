package matching

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// Registry reads and changes connections on behalf of their participants.
type Registry struct {
	connections *repository.ConnectionRepository
	swipes      *repository.SwipeRepository
	quota       *Quota
	events      events.Publisher
	log         *slog.Logger
}

var _ chat.MembershipResolver = (*Registry)(nil)

func NewRegistry(gdb *gorm.DB, quota *Quota, pub events.Publisher, log *slog.Logger) *Registry {
	return &Registry{
		connections: repository.NewConnectionRepository(gdb),
		swipes:      repository.NewSwipeRepository(gdb),
		quota:       quota,
		events:      pub,
		log:         log,
	}
}

// Get returns connection id if actorID takes part in it.
func (r *Registry) Get(ctx context.Context, actorID, id uint64) (*db.Connection, error) {
	conn, err := r.connections.FindByID(ctx, id)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if conn == nil {
		return nil, svcErr.ErrConnectionMissing
	}
	if !conn.HasUser(actorID) {
		return nil, svcErr.ErrNotParticipant
	}
	return conn, nil
}

// List pages through actorID's connections in status (active when empty).
func (r *Registry) List(ctx context.Context, actorID uint64, status string, page pagination.Page) ([]db.Connection, string, error) {
	if status == "" {
		status = db.ConnectionActive
	}
	if !validStatus(status) {
		return nil, "", svcErr.InvalidOperation("unknown connection status")
	}
	conns, next, err := r.connections.ListForUser(ctx, actorID, status, page.Token, page.Limit)
	if err != nil {
		return nil, "", classifyRepo(err)
	}
	return conns, next, nil
}

// UpdateStatus moves a connection to unmatched or blocked.
//
// Rules:
//   - active is only ever set by the match detector.
//   - a blocked connection can only be released (to unmatched) by whoever blocked it.
//   - every move to unmatched cleans up the pair's swipes and likes, as Unmatch does.
func (r *Registry) UpdateStatus(ctx context.Context, actorID, id uint64, status string) (*db.Connection, error) {
	conn, err := r.Get(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	switch status {
	case db.ConnectionBlocked:
		if conn.Status == db.ConnectionBlocked {
			return conn, nil
		}
	case db.ConnectionUnmatched:
		if conn.Status != db.ConnectionBlocked {
			if _, err := r.Unmatch(ctx, actorID, UnmatchTarget{ConnectionID: id}); err != nil {
				return nil, err
			}
			return r.Get(ctx, actorID, id)
		}
		if conn.StatusChangedBy == nil || *conn.StatusChangedBy != actorID {
			return nil, svcErr.Forbidden("only the member who blocked can release this connection")
		}
	default:
		return nil, svcErr.InvalidOperation("status must be unmatched or blocked")
	}

	if err := r.connections.SetStatus(ctx, conn.ID, status, &actorID); err != nil {
		return nil, svcErr.Internal(err)
	}
	conn.Status = status
	conn.StatusChangedBy = &actorID
	r.log.InfoContext(ctx, "connection status changed", "connection_id", conn.ID, "status", status, "by", actorID)

	if status == db.ConnectionUnmatched {
		r.release(ctx, actorID, conn.Other(actorID))
	}
	return conn, nil
}

// Unmatch ends a match and removes the pair's swipe state.
//
// Resolution: by connection id first, then by the pair (actor, target).
// When no connection exists but a target is known, cleanup still runs so
// no half-matched state survives a stale client. Cleanup is best-effort:
// failures are logged and do not fail the call.
func (r *Registry) Unmatch(ctx context.Context, actorID uint64, target UnmatchTarget) (*UnmatchResult, error) {
	var conn *db.Connection
	var err error

	if target.ConnectionID != 0 {
		if conn, err = r.connections.FindByID(ctx, target.ConnectionID); err != nil {
			return nil, svcErr.Internal(err)
		}
	}
	if conn == nil && target.TargetUserID != 0 {
		if conn, err = r.connections.FindByPair(ctx, actorID, target.TargetUserID); err != nil {
			return nil, svcErr.Internal(err)
		}
	}

	result := &UnmatchResult{}
	var other uint64
	switch {
	case conn != nil:
		if !conn.HasUser(actorID) {
			return nil, svcErr.ErrNotParticipant
		}
		other = conn.Other(actorID)
		result.ConnectionID = conn.ID
		result.OtherUserID = other
		if conn.Status == db.ConnectionActive {
			if err := r.connections.SetStatus(ctx, conn.ID, db.ConnectionUnmatched, &actorID); err != nil {
				return nil, svcErr.Internal(err)
			}
			result.StatusChanged = true
		}
	case target.TargetUserID != 0:
		other = target.TargetUserID
		result.OtherUserID = other
	default:
		return nil, svcErr.ErrConnectionMissing
	}
	if other == actorID {
		return nil, svcErr.ErrSelfSwipe
	}

	result.SwipesRemoved, result.LikesRefunded = r.release(ctx, actorID, other)

	if result.StatusChanged {
		events.Emit(ctx, r.events, r.log, events.New(events.TypeConnectionEnded, result.ConnectionID,
			events.ConnectionEnded{ConnectionID: result.ConnectionID, By: actorID}))
	}
	r.log.InfoContext(ctx, "unmatched",
		"actor", actorID, "other", other, "connection_id", result.ConnectionID,
		"swipes_removed", result.SwipesRemoved, "likes_refunded", result.LikesRefunded)
	return result, nil
}

// release deletes the pair's swipes in both directions and refunds the
// likes behind them. Failures are logged only.
func (r *Registry) release(ctx context.Context, actorID, other uint64) (swipes int64, likes int) {
	if n, err := r.swipes.DeletePair(ctx, actorID, other); err != nil {
		r.log.WarnContext(ctx, "unmatch: swipe cleanup failed", "actor", actorID, "other", other, "err", err)
	} else {
		swipes = n
	}
	if n, err := r.quota.Release(ctx, nil, actorID, other); err != nil {
		r.log.WarnContext(ctx, "unmatch: like refund failed", "actor", actorID, "other", other, "err", err)
	} else {
		likes = n
	}
	return swipes, likes
}

// Membership tells the chat layer who takes part in a connection.
func (r *Registry) Membership(ctx context.Context, connectionID uint64) (*chat.Membership, error) {
	conn, err := r.connections.FindByID(ctx, connectionID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if conn == nil {
		return nil, svcErr.ErrConnectionMissing
	}
	return &chat.Membership{
		ConnectionID: conn.ID,
		UserIDs:      [2]uint64{conn.UserLowID, conn.UserHighID},
		Active:       conn.Status == db.ConnectionActive,
	}, nil
}

// Counts returns active connections of userID, for the admin aggregates.
func (r *Registry) Counts(ctx context.Context, userID uint64) (int64, error) {
	n, err := r.connections.CountForUser(ctx, userID, db.ConnectionActive)
	if err != nil {
		return 0, svcErr.Internal(err)
	}
	return n, nil
}

func validStatus(s string) bool {
	switch s {
	case db.ConnectionActive, db.ConnectionUnmatched, db.ConnectionBlocked:
		return true
	}
	return false
}

// classifyRepo turns a bad pagination token into InvalidOperation.
func classifyRepo(err error) error {
	if errors.Is(err, pagination.ErrInvalidToken) {
		return svcErr.InvalidOperation("invalid pagination token")
	}
	return svcErr.Internal(err)
}
