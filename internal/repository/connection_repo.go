package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// ConnectionRepository stores mutual matches keyed by their canonical pair.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(database *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ConnectionRepository) WithTx(tx *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: tx}
}

// CanonicalPair orders two user ids as (low, high).
func CanonicalPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// EnsureActive creates the connection for a pair if none exists and returns
// the stored row. An existing row is returned untouched, whatever its status.
//
// Two concurrent callers for the same pair both end up with the same row:
// the insert is ON CONFLICT DO NOTHING against idx_connection_pair.
func (r *ConnectionRepository) EnsureActive(ctx context.Context, a, b uint64) (*db.Connection, bool, error) {
	low, high := CanonicalPair(a, b)
	conn := db.Connection{UserLowID: low, UserHighID: high, Status: db.ConnectionActive}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
			DoNothing: true,
		}).
		Create(&conn)
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "connectionRepo.EnsureActive")
	}
	created := res.RowsAffected == 1

	stored, err := r.FindByPair(ctx, low, high)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, errors.New("connectionRepo.EnsureActive: row vanished after upsert")
	}
	return stored, created, nil
}

// FindByPair returns the connection for a pair in any order, or nil.
func (r *ConnectionRepository) FindByPair(ctx context.Context, a, b uint64) (*db.Connection, error) {
	low, high := CanonicalPair(a, b)
	var c db.Connection
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "connectionRepo.FindByPair")
	}
	return &c, nil
}

// FindByID returns the connection with id, or nil.
func (r *ConnectionRepository) FindByID(ctx context.Context, id uint64) (*db.Connection, error) {
	var c db.Connection
	err := r.db.WithContext(ctx).Take(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "connectionRepo.FindByID")
	}
	return &c, nil
}

// SetStatus moves a connection to status, recording who changed it.
func (r *ConnectionRepository) SetStatus(ctx context.Context, id uint64, status string, by *uint64) error {
	err := r.db.WithContext(ctx).
		Model(&db.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "status_changed_by": by}).Error
	return errors.Wrap(err, "connectionRepo.SetStatus")
}

// Reactivate flips an unmatched connection back to active. Only one of
// several concurrent callers gets true.
func (r *ConnectionRepository) Reactivate(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Connection{}).
		Where("id = ? AND status = ?", id, db.ConnectionUnmatched).
		Updates(map[string]any{"status": db.ConnectionActive, "status_changed_by": nil})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "connectionRepo.Reactivate")
	}
	return res.RowsAffected == 1, nil
}

// ListForUser returns userID's connections with the given status, newest first.
func (r *ConnectionRepository) ListForUser(
	ctx context.Context,
	userID uint64,
	status string,
	paginationToken string,
	limit int,
) ([]db.Connection, string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)

	query := r.db.WithContext(ctx).
		Model(&db.Connection{}).
		Where("(user_low_id = ? OR user_high_id = ?) AND status = ?", userID, userID, status)
	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var conns []db.Connection
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&conns).Error; err != nil {
		return nil, "", errors.Wrap(err, "connectionRepo.ListForUser")
	}

	var next string
	if len(conns) > limit {
		last := conns[limit-1]
		next, _ = pagination.Encode(pagination.At(last.CreatedAt, last.ID))
		conns = conns[:limit]
	}
	return conns, next, nil
}

// CountForUser counts userID's connections in status.
func (r *ConnectionRepository) CountForUser(ctx context.Context, userID uint64, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Connection{}).
		Where("(user_low_id = ? OR user_high_id = ?) AND status = ?", userID, userID, status).
		Count(&n).Error
	return n, errors.Wrap(err, "connectionRepo.CountForUser")
}
