package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// Swipe actions as persisted.
const (
	ActionLike      = "like"
	ActionSuperLike = "super_like"
	ActionPass      = "pass"
)

// LikeActions are the actions that count as interest (and against the daily quota).
var LikeActions = []string{ActionLike, ActionSuperLike}

// SwipeRepository provides data access methods for the Swipe model.
// It encapsulates all queries related to likes/passes between members.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SwipeRepository) WithTx(tx *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: tx}
}

// Create inserts a new swipe.
//
// Behavior:
//   - (actor_id, target_id) is unique; a second insert fails with gorm.ErrDuplicatedKey.
//   - Never overwrites an existing row.
func (r *SwipeRepository) Create(ctx context.Context, s *db.Swipe) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return errors.Wrap(err, "swipeRepo.Create")
	}
	return nil
}

// Find returns the swipe actor -> target, or nil when there is none.
func (r *SwipeRepository) Find(ctx context.Context, actorID, targetID uint64) (*db.Swipe, error) {
	var s db.Swipe
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "swipeRepo.Find")
	}
	return &s, nil
}

// MarkMatched flips is_match on both directions of a pair, for like actions only.
// Rows already matched keep their original matched_at.
func (r *SwipeRepository) MarkMatched(ctx context.Context, a, b uint64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("((actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?))", a, b, b, a).
		Where("action IN ? AND is_match = ?", LikeActions, false).
		Updates(map[string]any{"is_match": true, "matched_at": at})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "swipeRepo.MarkMatched")
	}
	return res.RowsAffected, nil
}

// DeletePair removes both directions of a pair.
func (r *SwipeRepository) DeletePair(ctx context.Context, a, b uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)", a, b, b, a).
		Delete(&db.Swipe{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "swipeRepo.DeletePair")
	}
	return res.RowsAffected, nil
}

// GetLikers returns swipes in which someone liked the given recipient.
//
// Behavior:
//   - Only like/super_like swipes toward recipient_id are returned.
//   - Excludes actors that the recipient explicitly passed.
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.GetLikers(ctx, 42, "", 20) // first 20 members who liked user 42
func (r *SwipeRepository) GetLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken string,
	limit int,
) ([]db.Swipe, string, error) {
	query := r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.target_id = ? AND s.action IN ?", recipientID, LikeActions).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipes s2
				WHERE s2.actor_id = ?
				  AND s2.target_id = s.actor_id
				  AND s2.action = ?
			)`, recipientID, ActionPass)

	return r.page(query, paginationToken, limit)
}

// GetNewLikers returns likes the recipient has not answered yet.
//
// Behavior:
//   - Only like/super_like swipes toward recipient_id are considered.
//   - Excludes actors the recipient already swiped on in any way.
//   - Ordered by created_at DESC, id DESC, cursor paginated.
func (r *SwipeRepository) GetNewLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken string,
	limit int,
) ([]db.Swipe, string, error) {
	// subquery to exclude anything the recipient already answered
	answered := r.db.
		Table("swipes").
		Select("1").
		Where("actor_id = s.target_id AND target_id = s.actor_id")

	query := r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.target_id = ? AND s.action IN ? AND NOT EXISTS (?)", recipientID, LikeActions, answered)

	return r.page(query, paginationToken, limit)
}

func (r *SwipeRepository) page(query *gorm.DB, token string, limit int) ([]db.Swipe, string, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)

	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where(
			"(s.created_at < ? OR (s.created_at = ? AND s.id < ?))",
			ts, ts, cursor.ID,
		)
	}

	var swipes []db.Swipe
	if err := query.Select("s.*").Order("s.created_at DESC, s.id DESC").Limit(limit + 1).Find(&swipes).Error; err != nil {
		return nil, "", errors.Wrap(err, "swipeRepo.page")
	}

	// pagination: build next cursor if needed
	var next string
	if len(swipes) > limit {
		last := swipes[limit-1]
		next, _ = pagination.Encode(pagination.At(last.CreatedAt, last.ID))
		swipes = swipes[:limit]
	}
	return swipes, next, nil
}

// CountLikers returns how many members liked the given recipient,
// excluding actors the recipient passed.
func (r *SwipeRepository) CountLikers(ctx context.Context, recipientID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.target_id = ? AND s.action IN ?", recipientID, LikeActions).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipes s2
				WHERE s2.actor_id = ?
				  AND s2.target_id = s.actor_id
				  AND s2.action = ?
			)`, recipientID, ActionPass).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "swipeRepo.CountLikers")
	}
	return count, nil
}

// CountLikesGiven returns how many like/super_like swipes actorID issued.
func (r *SwipeRepository) CountLikesGiven(ctx context.Context, actorID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("actor_id = ? AND action IN ?", actorID, LikeActions).
		Count(&count).Error
	return count, errors.Wrap(err, "swipeRepo.CountLikesGiven")
}

// CountMatches returns how many of userID's swipes are matched.
func (r *SwipeRepository) CountMatches(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("actor_id = ? AND is_match = ?", userID, true).
		Count(&count).Error
	return count, errors.Wrap(err, "swipeRepo.CountMatches")
}
