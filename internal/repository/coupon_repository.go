package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	couponDomain "github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/pkg/database"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// CouponModel is the GORM model for the coupons table.
type CouponModel struct {
	ID           uuid.UUID           `gorm:"type:char(36);primaryKey"`
	Code         string              `gorm:"type:varchar(50);uniqueIndex;not null"`
	DiscountType string              `gorm:"type:varchar(20);not null"`
	Value        decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	MinPurchase  decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	MaxDiscount  decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	UsageLimit   *int
	UsesCount    int        `gorm:"not null;default:0"`
	PerUserLimit *int
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	AppliesTo    string     `gorm:"type:varchar(20);not null"`
	EntityID     *uuid.UUID `gorm:"type:char(36)"`
	IsActive     bool       `gorm:"not null;index"`
	Description  string     `gorm:"type:text"`
	CreatedBy    uuid.UUID  `gorm:"type:char(36);not null"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

// TableName sets the table name.
func (CouponModel) TableName() string { return "coupons" }

// CouponRedemptionModel is the GORM model for the coupon_redemptions table.
type CouponRedemptionModel struct {
	ID             uuid.UUID       `gorm:"type:char(36);primaryKey"`
	CouponID       uuid.UUID       `gorm:"type:char(36);not null;index:idx_redemptions_coupon_user"`
	UserID         uuid.UUID       `gorm:"type:char(36);not null;index:idx_redemptions_coupon_user"`
	PaymentID      uuid.UUID       `gorm:"type:char(36);not null;uniqueIndex"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	RedeemedAt     time.Time       `gorm:"not null"`
}

// TableName sets the table name.
func (CouponRedemptionModel) TableName() string { return "coupon_redemptions" }

// editableCouponColumns are written by admin updates. uses_count is deliberately absent:
// it only moves through IncrementUsageAtomic.
var editableCouponColumns = []string{
	"code", "discount_type", "value", "min_purchase", "max_discount", "usage_limit",
	"per_user_limit", "valid_from", "valid_until", "applies_to", "entity_id",
	"is_active", "description", "updated_at",
}

const couponBatchSize = 100

// GormCouponRepository implements coupon.Repository using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository.
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *GormCouponRepository) WithTx(tx *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: tx}
}

// Save persists a new coupon.
func (r *GormCouponRepository) Save(ctx context.Context, c *couponDomain.Coupon) error {
	model := toCouponModel(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if database.IsDuplicateKeyErr(err) {
			return domain.NewConflictError("coupon code " + c.Code() + " already exists")
		}
		return domain.NewPersistenceError("failed to save coupon", err)
	}
	return nil
}

// SaveAll inserts the coupons in one transaction; either every row is written or none is.
func (r *GormCouponRepository) SaveAll(ctx context.Context, cs []*couponDomain.Coupon) error {
	if len(cs) == 0 {
		return nil
	}
	models := make([]CouponModel, len(cs))
	for i, c := range cs {
		models[i] = toCouponModel(c)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, couponBatchSize).Error
	})
	if err != nil {
		if database.IsDuplicateKeyErr(err) {
			return domain.NewConflictError("a generated coupon code already exists")
		}
		return domain.NewPersistenceError("failed to save coupons", err)
	}
	return nil
}

// Update writes the admin-editable columns of a coupon.
func (r *GormCouponRepository) Update(ctx context.Context, c *couponDomain.Coupon) error {
	model := toCouponModel(c)
	result := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("id = ?", model.ID).
		Select(editableCouponColumns).
		Updates(&model)
	if result.Error != nil {
		if database.IsDuplicateKeyErr(result.Error) {
			return domain.NewConflictError("coupon code " + c.Code() + " already exists")
		}
		return domain.NewPersistenceError("failed to update coupon", result.Error)
	}
	if result.RowsAffected == 0 {
		return couponDomain.ErrCouponNotFound
	}
	return nil
}

// Delete removes a coupon and its redemption history.
func (r *GormCouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("coupon_id = ?", id).Delete(&CouponRedemptionModel{}).Error; err != nil {
			return domain.NewPersistenceError("failed to delete coupon redemptions", err)
		}
		result := tx.Where("id = ?", id).Delete(&CouponModel{})
		if result.Error != nil {
			return domain.NewPersistenceError("failed to delete coupon", result.Error)
		}
		if result.RowsAffected == 0 {
			return couponDomain.ErrCouponNotFound
		}
		return nil
	})
}

// FindByID returns a coupon by ID.
func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*couponDomain.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByCode returns a coupon by its normalised code.
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*couponDomain.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Where("code = ?", couponDomain.NormalizeCode(code)))
}

// FindForUpdate loads a coupon with a row lock on engines that support one.
func (r *GormCouponRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*couponDomain.Coupon, error) {
	q := r.db.WithContext(ctx)
	if database.SupportsRowLocks(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(q.Where("id = ?", id))
}

func (r *GormCouponRepository) first(q *gorm.DB) (*couponDomain.Coupon, error) {
	var model CouponModel
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, couponDomain.ErrCouponNotFound
		}
		return nil, domain.NewPersistenceError("failed to load coupon", err)
	}
	return toCouponDomain(&model), nil
}

// ExistsByCode checks whether a code is taken.
func (r *GormCouponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("code = ?", couponDomain.NormalizeCode(code)).
		Count(&count).Error; err != nil {
		return false, domain.NewPersistenceError("failed to check coupon code", err)
	}
	return count > 0, nil
}

// List returns coupons newest first.
func (r *GormCouponRepository) List(ctx context.Context, filter couponDomain.ListFilter) ([]*couponDomain.Coupon, int64, error) {
	q := r.db.WithContext(ctx).Model(&CouponModel{})
	if filter.Active != nil {
		q = q.Where("is_active = ?", *filter.Active)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("failed to count coupons", err)
	}

	var models []CouponModel
	offset := (filter.Page - 1) * filter.Limit
	if err := q.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&models).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("failed to list coupons", err)
	}

	coupons := make([]*couponDomain.Coupon, len(models))
	for i := range models {
		coupons[i] = toCouponDomain(&models[i])
	}
	return coupons, total, nil
}

// FindAvailable returns coupons a member could redeem at now.
func (r *GormCouponRepository) FindAvailable(ctx context.Context, now time.Time) ([]*couponDomain.Coupon, error) {
	var models []CouponModel
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("valid_from IS NULL OR valid_from <= ?", now).
		Where("valid_until IS NULL OR valid_until >= ?", now).
		Where("usage_limit IS NULL OR uses_count < usage_limit").
		Order("code ASC").
		Find(&models).Error; err != nil {
		return nil, domain.NewPersistenceError("failed to list available coupons", err)
	}

	coupons := make([]*couponDomain.Coupon, len(models))
	for i := range models {
		coupons[i] = toCouponDomain(&models[i])
	}
	return coupons, nil
}

// IncrementUsageAtomic adds one use when the usage limit still allows it. The limit check
// and the increment are a single statement, so concurrent callers cannot overrun the cap.
func (r *GormCouponRepository) IncrementUsageAtomic(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("id = ? AND (usage_limit IS NULL OR uses_count < usage_limit)", id).
		Updates(map[string]interface{}{
			"uses_count": gorm.Expr("uses_count + ?", 1),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return domain.NewPersistenceError("failed to increment coupon usage", result.Error)
	}
	if result.RowsAffected == 0 {
		return couponDomain.ErrUsageLimitExceeded
	}
	return nil
}

// CountUserRedemptions counts a member's redemptions of a coupon.
func (r *GormCouponRepository) CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&CouponRedemptionModel{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error; err != nil {
		return 0, domain.NewPersistenceError("failed to count redemptions", err)
	}
	return int(count), nil
}

// SaveRedemption persists a redemption record.
func (r *GormCouponRepository) SaveRedemption(ctx context.Context, red *couponDomain.Redemption) error {
	model := CouponRedemptionModel{
		ID:             red.ID,
		CouponID:       red.CouponID,
		UserID:         red.UserID,
		PaymentID:      red.PaymentID,
		DiscountAmount: red.DiscountAmount,
		RedeemedAt:     red.RedeemedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.NewPersistenceError("failed to save redemption", err)
	}
	return nil
}

// ListRedemptions returns a coupon's redemption history, newest first.
func (r *GormCouponRepository) ListRedemptions(ctx context.Context, couponID uuid.UUID, page, limit int) ([]*couponDomain.Redemption, int64, error) {
	q := r.db.WithContext(ctx).Model(&CouponRedemptionModel{}).Where("coupon_id = ?", couponID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("failed to count redemptions", err)
	}

	var models []CouponRedemptionModel
	if err := q.Order("redeemed_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("failed to list redemptions", err)
	}

	out := make([]*couponDomain.Redemption, len(models))
	for i, m := range models {
		out[i] = &couponDomain.Redemption{
			ID:             m.ID,
			CouponID:       m.CouponID,
			UserID:         m.UserID,
			PaymentID:      m.PaymentID,
			DiscountAmount: m.DiscountAmount,
			RedeemedAt:     m.RedeemedAt,
		}
	}
	return out, total, nil
}

func toCouponModel(c *couponDomain.Coupon) CouponModel {
	return CouponModel{
		ID:           c.ID(),
		Code:         c.Code(),
		DiscountType: string(c.DiscountType()),
		Value:        c.Value(),
		MinPurchase:  c.MinPurchase(),
		MaxDiscount:  c.MaxDiscount(),
		UsageLimit:   c.UsageLimit(),
		UsesCount:    c.UsesCount(),
		PerUserLimit: c.PerUserLimit(),
		ValidFrom:    c.ValidFrom(),
		ValidUntil:   c.ValidUntil(),
		AppliesTo:    string(c.AppliesTo()),
		EntityID:     c.EntityID(),
		IsActive:     c.IsActive(),
		Description:  c.Description(),
		CreatedBy:    c.CreatedBy(),
		CreatedAt:    c.CreatedAt(),
		UpdatedAt:    c.UpdatedAt(),
	}
}

func toCouponDomain(m *CouponModel) *couponDomain.Coupon {
	return couponDomain.Reconstruct(
		m.ID, m.Code, couponDomain.DiscountType(m.DiscountType), m.Value,
		m.MinPurchase, m.MaxDiscount,
		m.UsageLimit, m.UsesCount, m.PerUserLimit,
		utcPtr(m.ValidFrom), utcPtr(m.ValidUntil),
		couponDomain.TargetKind(m.AppliesTo), m.EntityID,
		m.IsActive, m.Description,
		m.CreatedBy, m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
