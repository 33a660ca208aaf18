package matching

import (
	"context"
	"time"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/repository"
)

// Quota is the daily like tracker. Days roll over at UTC midnight; there is
// no reset job, a new day simply uses a new counter row.
type Quota struct {
	likes *repository.DailyLikeRepository
	cap   int
	now   func() time.Time
}

func NewQuota(gdb *gorm.DB, cap int, now func() time.Time) *Quota {
	return &Quota{likes: repository.NewDailyLikeRepository(gdb), cap: cap, now: now}
}

// Cap is the configured number of likes per day.
func (q *Quota) Cap() int { return q.cap }

// Today is the current day key.
func (q *Quota) Today() string { return Day(q.now()) }

// TryConsume takes one like from userID's budget for day. When tx is non-nil
// the consumption joins that transaction and is rolled back with it.
func (q *Quota) TryConsume(ctx context.Context, tx *gorm.DB, userID uint64, day string) (bool, error) {
	repo := q.likes
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	ok, err := repo.Consume(ctx, userID, day, q.cap)
	if err != nil {
		return false, svcErr.Internal(err)
	}
	return ok, nil
}

// Release refunds every like exchanged between a and b, on whatever day it was spent.
func (q *Quota) Release(ctx context.Context, tx *gorm.DB, a, b uint64) (int, error) {
	repo := q.likes
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.RefundPair(ctx, a, b)
}

// Stats returns today's budget for userID.
func (q *Quota) Stats(ctx context.Context, userID uint64) (QuotaStats, error) {
	day := q.Today()
	used, err := q.likes.Used(ctx, userID, day)
	if err != nil {
		return QuotaStats{}, svcErr.Internal(err)
	}
	remaining := q.cap - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStats{Day: day, Used: used, Cap: q.cap, Remaining: remaining}, nil
}
