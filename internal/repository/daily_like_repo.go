package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/shaadimantra/internal/db"
)

// DailyLikeRepository keeps the per (user, day) like counters and the
// per-target rows that make a like refundable.
type DailyLikeRepository struct {
	db *gorm.DB
}

func NewDailyLikeRepository(database *gorm.DB) *DailyLikeRepository {
	return &DailyLikeRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *DailyLikeRepository) WithTx(tx *gorm.DB) *DailyLikeRepository {
	return &DailyLikeRepository{db: tx}
}

// Consume takes one unit from userID's counter for day, if fewer than max are used.
//
// Behavior:
//   - The counter row is created on first use (ON CONFLICT DO NOTHING).
//   - The increment is a single conditional UPDATE, so two concurrent callers
//     can never both take the last unit.
//   - Returns false when the cap is already reached.
func (r *DailyLikeRepository) Consume(ctx context.Context, userID uint64, day string, max int) (bool, error) {
	tx := r.db.WithContext(ctx)

	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.DailyLikeCounter{UserID: userID, Day: day}).Error
	if err != nil {
		return false, errors.Wrap(err, "dailyLikeRepo.Consume: ensure counter")
	}

	res := tx.Model(&db.DailyLikeCounter{}).
		Where("user_id = ? AND day = ? AND used < ?", userID, day, max).
		UpdateColumn("used", gorm.Expr("used + 1"))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "dailyLikeRepo.Consume")
	}
	return res.RowsAffected == 1, nil
}

// Used returns how many units userID consumed on day.
func (r *DailyLikeRepository) Used(ctx context.Context, userID uint64, day string) (int, error) {
	var counter db.DailyLikeCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "dailyLikeRepo.Used")
	}
	return counter.Used, nil
}

// Attribute records that one unit of userID's counter for day went to targetID.
func (r *DailyLikeRepository) Attribute(ctx context.Context, userID, targetID uint64, day string) error {
	err := r.db.WithContext(ctx).
		Create(&db.DailyLike{UserID: userID, TargetID: targetID, Day: day}).Error
	return errors.Wrap(err, "dailyLikeRepo.Attribute")
}

// RefundPair deletes the DailyLike rows of a pair in both directions and
// gives the matching units back to their counters. Counters never go below zero.
// Returns how many units were refunded.
func (r *DailyLikeRepository) RefundPair(ctx context.Context, a, b uint64) (int, error) {
	tx := r.db.WithContext(ctx)

	var likes []db.DailyLike
	err := tx.Where("(user_id = ? AND target_id = ?) OR (user_id = ? AND target_id = ?)", a, b, b, a).
		Find(&likes).Error
	if err != nil {
		return 0, errors.Wrap(err, "dailyLikeRepo.RefundPair: find")
	}

	refunded := 0
	for _, l := range likes {
		if err := tx.Delete(&db.DailyLike{}, l.ID).Error; err != nil {
			return refunded, errors.Wrap(err, "dailyLikeRepo.RefundPair: delete")
		}
		res := tx.Model(&db.DailyLikeCounter{}).
			Where("user_id = ? AND day = ? AND used > 0", l.UserID, l.Day).
			UpdateColumn("used", gorm.Expr("used - 1"))
		if res.Error != nil {
			return refunded, errors.Wrap(res.Error, "dailyLikeRepo.RefundPair: decrement")
		}
		refunded += int(res.RowsAffected)
	}
	return refunded, nil
}
