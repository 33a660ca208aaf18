package matching

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/cache"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// Service is the entry point of the matching core used by the transport layer.
type Service struct {
	ledger   *Ledger
	detector *Detector
	registry *Registry
	quota    *Quota
	swipes   *repository.SwipeRepository
	cache    *cache.RedisCache
	cfg      Config
	log      *slog.Logger
}

// Option customizes a Service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests that cross day boundaries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewService wires the matching components. rc may be nil, in which case
// liker counts are always read from the database.
func NewService(gdb *gorm.DB, rc *cache.RedisCache, pub events.Publisher, log *slog.Logger, cfg Config, opts ...Option) *Service {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.CountTTL <= 0 {
		cfg.CountTTL = time.Hour
	}

	quota := NewQuota(gdb, cfg.DailyLikeCap, o.now)
	return &Service{
		ledger:   NewLedger(gdb, quota, cfg, log, o.now),
		detector: NewDetector(gdb, pub, log, o.now),
		registry: NewRegistry(gdb, quota, pub, log),
		quota:    quota,
		swipes:   repository.NewSwipeRepository(gdb),
		cache:    rc,
		cfg:      cfg,
		log:      log,
	}
}

// Registry exposes the connection registry (chat membership, admin counts).
func (s *Service) Registry() *Registry { return s.registry }

// Quota exposes the daily like tracker.
func (s *Service) Quota() *Quota { return s.quota }

// Swipe records a swipe and, for likes, checks for a mutual match.
//
// A failure of the match check after the swipe committed is logged and
// reported as no match; the next reciprocal swipe or a retry of the other
// member's like will find it again.
func (s *Service) Swipe(ctx context.Context, actorID, targetID uint64, action Action, meta Metadata) (*SwipeResult, error) {
	swipe, err := s.ledger.RecordSwipe(ctx, actorID, targetID, action, meta)
	if err != nil {
		return nil, err
	}
	result := &SwipeResult{SwipeID: swipe.ID}

	// A pass hides the target from the actor's liker count, a like adds to
	// the target's; both change the two members' aggregates.
	defer s.forget(ctx,
		s.likerCountKey(actorID), s.likerCountKey(targetID),
		s.statsKey(actorID), s.statsKey(targetID))

	if !action.IsLike() {
		return result, nil
	}

	conn, err := s.detector.Detect(ctx, swipe)
	if err != nil {
		s.log.ErrorContext(ctx, "match detection failed", "swipe_id", swipe.ID, "err", err)
		return result, nil
	}
	if conn != nil {
		result.IsMatch = true
		result.ConnectionID = conn.ID
	}
	return result, nil
}

// Unmatch ends a connection and drops the cached aggregates of both members.
func (s *Service) Unmatch(ctx context.Context, actorID uint64, target UnmatchTarget) (*UnmatchResult, error) {
	res, err := s.registry.Unmatch(ctx, actorID, target)
	if err != nil {
		return nil, err
	}
	s.forgetPair(ctx, actorID, res.OtherUserID)
	return res, nil
}

// UpdateStatus blocks or releases a connection and drops the cached
// aggregates of both members.
func (s *Service) UpdateStatus(ctx context.Context, actorID, connectionID uint64, status string) (*db.Connection, error) {
	conn, err := s.registry.UpdateStatus(ctx, actorID, connectionID, status)
	if err != nil {
		return nil, err
	}
	s.forgetPair(ctx, actorID, conn.Other(actorID))
	return conn, nil
}

// Likers lists members who liked recipientID, minus those recipientID passed.
func (s *Service) Likers(ctx context.Context, recipientID uint64, page pagination.Page) ([]db.Swipe, string, error) {
	swipes, next, err := s.swipes.GetLikers(ctx, recipientID, page.Token, page.Limit)
	if err != nil {
		return nil, "", classifyRepo(err)
	}
	return swipes, next, nil
}

// NewLikers lists likes recipientID has not answered yet.
func (s *Service) NewLikers(ctx context.Context, recipientID uint64, page pagination.Page) ([]db.Swipe, string, error) {
	swipes, next, err := s.swipes.GetNewLikers(ctx, recipientID, page.Token, page.Limit)
	if err != nil {
		return nil, "", classifyRepo(err)
	}
	return swipes, next, nil
}

// CountLikers returns how many members liked recipientID.
// Cache-first strategy:
//  1. Read likes:received:<id> from Redis, refreshing its TTL on a hit.
//  2. On a miss or cache error, count in the database.
//  3. Store the fresh count with the configured TTL.
func (s *Service) CountLikers(ctx context.Context, recipientID uint64) (int64, error) {
	key := s.likerCountKey(recipientID)
	if s.cache != nil {
		n, ok, err := s.cache.GetCount(ctx, key, s.cfg.CountTTL)
		if err != nil {
			s.log.WarnContext(ctx, "liker count cache read failed", "key", key, "err", err)
		} else if ok {
			return n, nil
		}
	}

	count, err := s.swipes.CountLikers(ctx, recipientID)
	if err != nil {
		return 0, svcErr.Internal(err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, strconv.FormatInt(count, 10), s.cfg.CountTTL); err != nil {
			s.log.WarnContext(ctx, "liker count cache write failed", "key", key, "err", err)
		}
	}
	return count, nil
}

// QuotaStats returns today's like budget of userID.
func (s *Service) QuotaStats(ctx context.Context, userID uint64) (QuotaStats, error) {
	return s.quota.Stats(ctx, userID)
}

func (s *Service) likerCountKey(userID uint64) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.KeyForLikerCount(userID)
}

func (s *Service) statsKey(userID uint64) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.KeyForUserStats(userID)
}

func (s *Service) forgetPair(ctx context.Context, a, b uint64) {
	keys := []string{s.statsKey(a), s.likerCountKey(a)}
	if b != 0 {
		keys = append(keys, s.statsKey(b), s.likerCountKey(b))
	}
	s.forget(ctx, keys...)
}

// forget drops cached values; a failure only means a stale read until TTL expiry.
func (s *Service) forget(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed", "keys", keys, "err", err)
	}
}
