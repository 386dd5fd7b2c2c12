package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Redemption records one successful application of a coupon to a payment.
type Redemption struct {
	ID             uuid.UUID
	CouponID       uuid.UUID
	UserID         uuid.UUID
	PaymentID      uuid.UUID
	DiscountAmount decimal.Decimal
	RedeemedAt     time.Time
}

// NewRedemption creates a redemption stamped with the current time.
func NewRedemption(couponID, userID, paymentID uuid.UUID, discount decimal.Decimal) *Redemption {
	return &Redemption{
		ID:             uuid.New(),
		CouponID:       couponID,
		UserID:         userID,
		PaymentID:      paymentID,
		DiscountAmount: discount,
		RedeemedAt:     time.Now().UTC(),
	}
}

// ListFilter narrows an admin listing.
type ListFilter struct {
	Active *bool
	Page   int
	Limit  int
}

// Repository defines persistence operations for coupons and their redemptions.
type Repository interface {
	Save(ctx context.Context, c *Coupon) error
	// SaveAll is all-or-nothing; a duplicate code anywhere in the batch writes nothing.
	SaveAll(ctx context.Context, cs []*Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error

	// FindByID and FindByCode return ErrCouponNotFound when no row matches.
	FindByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Coupon, int64, error)

	// FindAvailable returns active coupons inside their window that still have uses left.
	FindAvailable(ctx context.Context, now time.Time) ([]*Coupon, error)

	// FindForUpdate loads a coupon and, where the engine supports it, locks its row
	// until the surrounding transaction ends.
	FindForUpdate(ctx context.Context, id uuid.UUID) (*Coupon, error)

	// IncrementUsageAtomic adds one use only while uses_count is below usage_limit.
	// It returns ErrUsageLimitExceeded when the guard fails.
	IncrementUsageAtomic(ctx context.Context, id uuid.UUID) error

	CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	SaveRedemption(ctx context.Context, r *Redemption) error
	ListRedemptions(ctx context.Context, couponID uuid.UUID, page, limit int) ([]*Redemption, int64, error)
}
