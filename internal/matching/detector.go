package matching

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/repository"
)

// Detector promotes reciprocal likes to a connection.
//
// It runs after the swipe has committed, so when two members like each
// other at the same instant at least the later detector sees both swipes.
// Both may then try to create the connection; the unique pair index makes
// the second insert a no-op.
type Detector struct {
	db          *gorm.DB
	swipes      *repository.SwipeRepository
	connections *repository.ConnectionRepository
	events      events.Publisher
	log         *slog.Logger
	now         func() time.Time
}

func NewDetector(gdb *gorm.DB, pub events.Publisher, log *slog.Logger, now func() time.Time) *Detector {
	return &Detector{
		db:          gdb,
		swipes:      repository.NewSwipeRepository(gdb),
		connections: repository.NewConnectionRepository(gdb),
		events:      pub,
		log:         log,
		now:         now,
	}
}

// Detect returns the connection s completes, or nil when there is no match.
func (d *Detector) Detect(ctx context.Context, s *db.Swipe) (*db.Connection, error) {
	if !Action(s.Action).IsLike() {
		return nil, nil
	}

	reciprocal, err := d.swipes.Find(ctx, s.TargetID, s.ActorID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if reciprocal == nil || !Action(reciprocal.Action).IsLike() {
		return nil, nil
	}

	var (
		conn        *db.Connection
		announced   bool
		reactivated bool
	)
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the insert comes first so a following read sees a concurrent creator's row
		c, created, err := d.connections.WithTx(tx).EnsureActive(ctx, s.ActorID, s.TargetID)
		if err != nil {
			return err
		}

		switch c.Status {
		case db.ConnectionBlocked:
			return errBlocked
		case db.ConnectionUnmatched:
			won, err := d.connections.WithTx(tx).Reactivate(ctx, c.ID)
			if err != nil {
				return err
			}
			c.Status = db.ConnectionActive
			announced, reactivated = won, won
		default:
			announced = created
		}

		if _, err := d.swipes.WithTx(tx).MarkMatched(ctx, s.ActorID, s.TargetID, d.now().UTC()); err != nil {
			return err
		}
		conn = c
		return nil
	})
	if errors.Is(err, errBlocked) {
		d.log.DebugContext(ctx, "reciprocal like on blocked pair", "actor", s.ActorID, "target", s.TargetID)
		return nil, nil
	}
	if err != nil {
		return nil, svcErr.Internal(err)
	}

	if announced {
		events.Emit(ctx, d.events, d.log, events.New(events.TypeMatchCreated, conn.ID, events.MatchCreated{
			ConnectionID: conn.ID,
			UserIDs:      []uint64{conn.UserLowID, conn.UserHighID},
			Reactivated:  reactivated,
		}))
		d.log.InfoContext(ctx, "match created", "connection_id", conn.ID, "users", []uint64{conn.UserLowID, conn.UserHighID})
	}
	return conn, nil
}

var errBlocked = errors.New("pair is blocked")

// classify keeps domain errors as they are and hides everything else behind Internal.
func classify(err error) error {
	var domain *svcErr.Error
	if errors.As(err, &domain) {
		return err
	}
	return svcErr.Internal(err)
}
