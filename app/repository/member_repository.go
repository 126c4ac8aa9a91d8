package repository

import (
	"context"

	"github.com/ManuelReschke/GymDesk/app/models"
	"gorm.io/gorm"
)

// memberRepository implements the MemberRepository interface
type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository instance
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *models.Member) error {
	if err := member.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error
	if err != nil {
		return nil, notFound(err, ErrMemberNotFound)
	}
	return &member, nil
}

// UpdateSubscription overwrites the subscription columns and activates the
// member. Writing the same update twice yields the same row.
func (r *memberRepository) UpdateSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.Member
		if err := tx.Select("id").Where("id = ?", id).First(&member).Error; err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		return tx.Model(&models.Member{}).Where("id = ?", id).Updates(map[string]interface{}{
			"subscription_type":       update.Type,
			"subscription_start_date": update.StartDate,
			"subscription_end_date":   update.EndDate,
			"subscription_status":     models.SUBSCRIPTION_STATUS_ACTIVE,
			"subscription_amount":     update.Amount,
			"status":                  models.MEMBER_STATUS_ACTIVE,
		}).Error
	})
}
