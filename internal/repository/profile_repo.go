package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// ProfileRepository provides data access for member profiles and their images.
// Soft-deleted (deactivated) profiles are invisible to every query here.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

func (r *ProfileRepository) Create(ctx context.Context, p *db.Profile) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(p).Error, "profileRepo.Create")
}

// Get returns the profile with its images ordered by position, or nil.
func (r *ProfileRepository) Get(ctx context.Context, id uint64) (*db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC, id ASC") }).
		Take(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "profileRepo.Get")
	}
	return &p, nil
}

// Save writes every column of p back.
func (r *ProfileRepository) Save(ctx context.Context, p *db.Profile) error {
	return errors.Wrap(r.db.WithContext(ctx).Omit("Images").Save(p).Error, "profileRepo.Save")
}

// Deactivate soft-deletes the profile.
func (r *ProfileRepository) Deactivate(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&db.Profile{}, id)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "profileRepo.Deactivate")
	}
	return res.RowsAffected == 1, nil
}

// Touch records member activity.
func (r *ProfileRepository) Touch(ctx context.Context, id uint64, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("id = ?", id).
		UpdateColumn("last_active_at", at).Error
	return errors.Wrap(err, "profileRepo.Touch")
}

// AddImage appends an image reference at the end of the gallery.
func (r *ProfileRepository) AddImage(ctx context.Context, profileID uint64, url string) (*db.ProfileImage, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.ProfileImage{}).Where("profile_id = ?", profileID).Count(&count).Error; err != nil {
		return nil, errors.Wrap(err, "profileRepo.AddImage: count")
	}
	img := db.ProfileImage{ProfileID: profileID, URL: url, Position: int(count)}
	if err := r.db.WithContext(ctx).Create(&img).Error; err != nil {
		return nil, errors.Wrap(err, "profileRepo.AddImage")
	}
	return &img, nil
}

// RemoveImage deletes one image of profileID. Returns false if it did not exist.
func (r *ProfileRepository) RemoveImage(ctx context.Context, profileID, imageID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND profile_id = ?", imageID, profileID).
		Delete(&db.ProfileImage{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "profileRepo.RemoveImage")
	}
	return res.RowsAffected == 1, nil
}

// SetStatus moves a profile through approval.
func (r *ProfileRepository) SetStatus(ctx context.Context, id uint64, status string, by uint64, note string, at time.Time) (bool, error) {
	fields := map[string]any{"status": status, "rejection_note": note}
	if status == db.ProfileApproved {
		fields["approved_at"] = at
		fields["approved_by"] = by
	}
	res := r.db.WithContext(ctx).Model(&db.Profile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "profileRepo.SetStatus")
	}
	return res.RowsAffected == 1, nil
}

// Discover returns approved profiles of gender that viewerID has not swiped
// on and shares no connection with. With rediscover set, unmatched
// connections no longer hide the other member. Ordered by id ASC, cursor
// paginated.
func (r *ProfileRepository) Discover(
	ctx context.Context,
	viewerID uint64,
	gender string,
	rediscover bool,
	paginationToken string,
	limit int,
) ([]db.Profile, string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)

	swiped := r.db.Table("swipes").Select("target_id").Where("actor_id = ?", viewerID)
	connected := r.db.Table("connections").
		Select("CASE WHEN user_low_id = ? THEN user_high_id ELSE user_low_id END", viewerID).
		Where("(user_low_id = ? OR user_high_id = ?)", viewerID, viewerID)
	if rediscover {
		connected = connected.Where("status <> ?", db.ConnectionUnmatched)
	}

	query := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("status = ? AND id <> ?", db.ProfileApproved, viewerID).
		Where("id NOT IN (?) AND id NOT IN (?)", swiped, connected)
	if gender != "" {
		query = query.Where("gender = ?", gender)
	}
	if !cursor.IsZero() {
		query = query.Where("id > ?", cursor.ID)
	}

	var profiles []db.Profile
	if err := query.Order("id ASC").Limit(limit + 1).Find(&profiles).Error; err != nil {
		return nil, "", errors.Wrap(err, "profileRepo.Discover")
	}

	var next string
	if len(profiles) > limit {
		next, _ = pagination.Encode(pagination.Cursor{ID: profiles[limit-1].ID})
		profiles = profiles[:limit]
	}
	return profiles, next, nil
}

// ListByStatus pages through profiles in status, oldest first (review queue order).
func (r *ProfileRepository) ListByStatus(ctx context.Context, status, paginationToken string, limit int) ([]db.Profile, string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)

	query := r.db.WithContext(ctx).Model(&db.Profile{}).Where("status = ?", status)
	if !cursor.IsZero() {
		query = query.Where("id > ?", cursor.ID)
	}

	var profiles []db.Profile
	if err := query.Order("id ASC").Limit(limit + 1).Find(&profiles).Error; err != nil {
		return nil, "", errors.Wrap(err, "profileRepo.ListByStatus")
	}

	var next string
	if len(profiles) > limit {
		next, _ = pagination.Encode(pagination.Cursor{ID: profiles[limit-1].ID})
		profiles = profiles[:limit]
	}
	return profiles, next, nil
}

// CountByStatus returns the number of live profiles per status.
func (r *ProfileRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "profileRepo.CountByStatus")
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
