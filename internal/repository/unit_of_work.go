package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/chessclub-academy/service-pricing/internal/domain/purchase"
)

// GormUnitOfWork runs purchase steps inside one database transaction.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork.
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do calls fn with repositories bound to a fresh transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s purchase.Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, purchase.Stores{
			Coupons:  NewGormCouponRepository(tx),
			Payments: NewPaymentRepository(tx),
			Grants:   NewGormGrantRepository(tx),
		})
	})
}

// Models lists every persistence model for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&CouponModel{},
		&CouponRedemptionModel{},
		&PaymentModel{},
		&GrantModel{},
		&PurchasableModel{},
	}
}
