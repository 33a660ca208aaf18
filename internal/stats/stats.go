// Package stats computes the per-member aggregates admins look at.
package stats

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/cache"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/repository"
)

// UserStats is one member's activity summary.
type UserStats struct {
	UserID            uint64    `json:"user_id"`
	LikesGiven        int64     `json:"likes_given"`
	LikesReceived     int64     `json:"likes_received"`
	Matches           int64     `json:"matches"`
	ActiveConnections int64     `json:"active_connections"`
	LikesToday        int       `json:"likes_today"`
	DailyCap          int       `json:"daily_cap"`
	ComputedAt        time.Time `json:"computed_at"`
}

// Service reads aggregates through a Redis cache. Matching drops the cached
// entry on every swipe and unmatch involving the member, so the TTL only
// bounds staleness for changes made elsewhere.
type Service struct {
	swipes   *repository.SwipeRepository
	profiles *repository.ProfileRepository
	registry *matching.Registry
	quota    *matching.Quota
	cache    *cache.RedisCache
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewService builds the service. rc may be nil to always compute.
func NewService(gdb *gorm.DB, ms *matching.Service, rc *cache.RedisCache, log *slog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		swipes:   repository.NewSwipeRepository(gdb),
		profiles: repository.NewProfileRepository(gdb),
		registry: ms.Registry(),
		quota:    ms.Quota(),
		cache:    rc,
		ttl:      ttl,
		log:      log.With("component", "stats"),
		now:      time.Now,
	}
}

func (s *Service) ForUser(ctx context.Context, admin auth.Principal, userID uint64) (*UserStats, error) {
	if !admin.IsAdmin() {
		return nil, svcErr.Forbidden("admin role required")
	}

	if s.cache != nil {
		var cached UserStats
		ok, err := s.cache.GetJSON(ctx, s.cache.KeyForUserStats(userID), &cached)
		if err != nil {
			s.log.WarnContext(ctx, "stats cache read failed", "user_id", userID, "err", err)
		} else if ok {
			return &cached, nil
		}
	}

	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if p == nil {
		return nil, svcErr.NotFound("profile not found")
	}

	out, err := s.compute(ctx, userID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, s.cache.KeyForUserStats(userID), out, s.ttl); err != nil {
			s.log.WarnContext(ctx, "stats cache write failed", "user_id", userID, "err", err)
		}
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, userID uint64) (*UserStats, error) {
	out := &UserStats{UserID: userID, ComputedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.LikesGiven, err = s.swipes.CountLikesGiven(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.LikesReceived, err = s.swipes.CountLikers(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Matches, err = s.swipes.CountMatches(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveConnections, err = s.registry.Counts(gctx, userID)
		return err
	})
	g.Go(func() error {
		q, err := s.quota.Stats(gctx, userID)
		if err != nil {
			return err
		}
		out.LikesToday, out.DailyCap = q.Used, q.Cap
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Overview counts live profiles per approval status.
func (s *Service) Overview(ctx context.Context, admin auth.Principal) (map[string]int64, error) {
	if !admin.IsAdmin() {
		return nil, svcErr.Forbidden("admin role required")
	}
	counts, err := s.profiles.CountByStatus(ctx)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	for _, st := range []string{db.ProfilePending, db.ProfileApproved, db.ProfileRejected} {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}
