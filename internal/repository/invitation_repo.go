package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/db"
)

// InvitationRepository stores registration invitations.
type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(database *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: database}
}

func (r *InvitationRepository) WithTx(tx *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: tx}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *db.Invitation) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(inv).Error, "invitationRepo.Create")
}

// OpenForEmail returns unredeemed, unexpired invitations for email, newest first.
func (r *InvitationRepository) OpenForEmail(ctx context.Context, email string, now time.Time) ([]db.Invitation, error) {
	var invs []db.Invitation
	err := r.db.WithContext(ctx).
		Where("email = ? AND redeemed_at IS NULL AND expires_at > ?", email, now).
		Order("id DESC").
		Find(&invs).Error
	return invs, errors.Wrap(err, "invitationRepo.OpenForEmail")
}

// Redeem marks an invitation used. It only succeeds once.
func (r *InvitationRepository) Redeem(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Invitation{}).
		Where("id = ? AND redeemed_at IS NULL", id).
		Update("redeemed_at", at)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "invitationRepo.Redeem")
	}
	return res.RowsAffected == 1, nil
}
