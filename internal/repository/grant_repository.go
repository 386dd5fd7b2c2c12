package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	accessDomain "github.com/chessclub-academy/service-pricing/internal/domain/access"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// GrantModel is the GORM model for the access_grants table.
type GrantModel struct {
	ID        uuid.UUID  `gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID  `gorm:"type:char(36);not null;index"`
	PaymentID uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex"`
	Kind      string     `gorm:"type:varchar(30);not null"`
	TargetID  *uuid.UUID `gorm:"type:char(36)"`
	Status    string     `gorm:"type:varchar(20);not null"`
	StartsAt  time.Time  `gorm:"not null"`
	ExpiresAt *time.Time
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (GrantModel) TableName() string { return "access_grants" }

// GormGrantRepository implements access.Repository using GORM.
type GormGrantRepository struct {
	db *gorm.DB
}

// NewGormGrantRepository creates a new GormGrantRepository.
func NewGormGrantRepository(db *gorm.DB) *GormGrantRepository {
	return &GormGrantRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *GormGrantRepository) WithTx(tx *gorm.DB) *GormGrantRepository {
	return &GormGrantRepository{db: tx}
}

// Save persists a new grant.
func (r *GormGrantRepository) Save(ctx context.Context, g *accessDomain.Grant) error {
	model := toGrantModel(g)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.NewPersistenceError("failed to save access grant", err)
	}
	return nil
}

// Update updates a grant.
func (r *GormGrantRepository) Update(ctx context.Context, g *accessDomain.Grant) error {
	model := toGrantModel(g)
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return domain.NewPersistenceError("failed to update access grant", err)
	}
	return nil
}

// FindByPaymentID returns the grant issued for a payment.
func (r *GormGrantRepository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*accessDomain.Grant, error) {
	var model GrantModel
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("AccessGrant", paymentID.String())
		}
		return nil, domain.NewPersistenceError("failed to load access grant", err)
	}
	return toGrantDomain(&model), nil
}

// ListByUser returns a member's grants, newest first.
func (r *GormGrantRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*accessDomain.Grant, error) {
	var models []GrantModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, domain.NewPersistenceError("failed to list access grants", err)
	}
	grants := make([]*accessDomain.Grant, len(models))
	for i := range models {
		grants[i] = toGrantDomain(&models[i])
	}
	return grants, nil
}

func toGrantModel(g *accessDomain.Grant) GrantModel {
	return GrantModel{
		ID: g.ID(), UserID: g.UserID(), PaymentID: g.PaymentID(),
		Kind: string(g.Kind()), TargetID: g.TargetID(), Status: string(g.Status()),
		StartsAt: g.StartsAt(), ExpiresAt: g.ExpiresAt(), RevokedAt: g.RevokedAt(),
		CreatedAt: g.CreatedAt(), UpdatedAt: g.UpdatedAt(),
	}
}

func toGrantDomain(m *GrantModel) *accessDomain.Grant {
	return accessDomain.Reconstruct(
		m.ID, m.UserID, m.PaymentID, accessDomain.Kind(m.Kind), m.TargetID,
		accessDomain.Status(m.Status), m.StartsAt.UTC(), utcPtr(m.ExpiresAt), utcPtr(m.RevokedAt),
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
}
