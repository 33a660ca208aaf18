package matching

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/repository"
)

// Ledger records swipes. Each (actor, target) pair can be swiped once.
type Ledger struct {
	db          *gorm.DB
	profiles    *repository.ProfileRepository
	swipes      *repository.SwipeRepository
	connections *repository.ConnectionRepository
	likes       *repository.DailyLikeRepository
	quota       *Quota
	cfg         Config
	log         *slog.Logger
	now         func() time.Time
}

func NewLedger(gdb *gorm.DB, quota *Quota, cfg Config, log *slog.Logger, now func() time.Time) *Ledger {
	return &Ledger{
		db:          gdb,
		profiles:    repository.NewProfileRepository(gdb),
		swipes:      repository.NewSwipeRepository(gdb),
		connections: repository.NewConnectionRepository(gdb),
		likes:       repository.NewDailyLikeRepository(gdb),
		quota:       quota,
		cfg:         cfg,
		log:         log,
		now:         now,
	}
}

// RecordSwipe stores actor's action toward target.
//
// Checks, in order:
//   - self swipe → InvalidOperation
//   - target missing, deactivated or not approved → NotFound
//   - actor profile below the completeness threshold → Forbidden
//   - pair blocked, or unmatched while re-discovery is off → InvalidOperation
//   - existing swipe for the pair → Conflict
//   - like with no budget left today → QuotaExceeded
//
// Quota consumption, the swipe row and its DailyLike attribution commit
// together. Any failure rolls the quota back.
func (l *Ledger) RecordSwipe(ctx context.Context, actorID, targetID uint64, action Action, meta Metadata) (*db.Swipe, error) {
	if actorID == targetID {
		return nil, svcErr.ErrSelfSwipe
	}
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}

	target, err := l.profiles.Get(ctx, targetID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if target == nil || target.Status != db.ProfileApproved {
		return nil, svcErr.ErrProfileNotFound
	}

	actor, err := l.profiles.Get(ctx, actorID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if actor == nil || actor.Completeness < l.cfg.MinCompleteness {
		return nil, svcErr.ErrProfileIncomplete
	}

	conn, err := l.connections.FindByPair(ctx, actorID, targetID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if conn != nil {
		switch {
		case conn.Status == db.ConnectionBlocked:
			return nil, svcErr.ErrPairUnavailable
		case conn.Status == db.ConnectionUnmatched && !l.cfg.AllowRediscovery:
			return nil, svcErr.ErrPairUnavailable
		}
	}

	swipe := &db.Swipe{
		ActorID:  actorID,
		TargetID: targetID,
		Action:   string(action),
		Source:   meta.Source,
		Platform: meta.Platform,
	}
	day := Day(l.now())

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := l.swipes.WithTx(tx).Find(ctx, actorID, targetID)
		if err != nil {
			return err
		}
		if existing != nil {
			return svcErr.ErrAlreadySwiped
		}

		if action.IsLike() {
			ok, err := l.quota.TryConsume(ctx, tx, actorID, day)
			if err != nil {
				return err
			}
			if !ok {
				return svcErr.ErrDailyLimit
			}
		}

		if err := l.swipes.WithTx(tx).Create(ctx, swipe); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return svcErr.ErrAlreadySwiped
			}
			return err
		}

		if action.IsLike() {
			return l.likes.WithTx(tx).Attribute(ctx, actorID, targetID, day)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	l.log.DebugContext(ctx, "swipe recorded", "actor", actorID, "target", targetID, "action", action, "swipe_id", swipe.ID)
	return swipe, nil
}
