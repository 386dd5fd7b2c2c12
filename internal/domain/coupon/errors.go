package coupon

import (
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// Redemption failures. Each carries a stable code returned to API clients.
var (
	ErrCouponNotFound = &domain.DomainError{
		Err: domain.ErrNotFound, Code: "coupon_not_found", Message: "coupon not found",
	}
	ErrCouponInactive       = domain.NewRejection("coupon_inactive", "coupon is not active")
	ErrCouponExpired        = domain.NewRejection("coupon_expired", "coupon has expired")
	ErrCouponNotYetActive   = domain.NewRejection("coupon_not_yet_active", "coupon is not valid yet")
	ErrCouponNotApplicable  = domain.NewRejection("coupon_not_applicable", "coupon does not apply to this purchase")
	ErrBelowMinimumPurchase = domain.NewRejection("below_minimum_purchase", "purchase amount is below the coupon minimum")
	ErrUsageLimitExceeded   = domain.NewRejection("usage_limit_exceeded", "coupon usage limit has been reached")
	ErrPerUserLimitExceeded = domain.NewRejection("per_user_limit_exceeded", "you have already used this coupon the maximum number of times")

	// ErrInvalidCouponType means a stored coupon carries a discount type the calculator
	// does not know. Unknown types are refused on write, so this indicates corrupt data.
	ErrInvalidCouponType = &domain.DomainError{
		Err: domain.ErrInternal, Code: "invalid_coupon_type", Message: "coupon has an unknown discount type",
	}
)

// Reason returns the machine code of a rejection, or "" for other errors.
func Reason(err error) string {
	return domain.CodeOf(err)
}
