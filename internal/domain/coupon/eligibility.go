package coupon

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Target identifies what is being bought. ID is nil for ad-hoc orders.
type Target struct {
	Kind TargetKind
	ID   *uuid.UUID
}

// EligibilityRequest describes one attempt to apply a coupon.
type EligibilityRequest struct {
	BasePrice        decimal.Decimal
	PurchaserID      uuid.UUID
	Target           Target
	Now              time.Time
	PriorRedemptions int
}

// CheckEligibility returns nil when c may be applied to req, or the first failing rule.
// Rules run in a fixed order: active flag, validity window, scope, minimum purchase,
// global usage limit, per-user limit.
func CheckEligibility(c *Coupon, req EligibilityRequest) error {
	if !c.isActive {
		return ErrCouponInactive
	}

	if c.validFrom != nil && req.Now.Before(*c.validFrom) {
		return ErrCouponNotYetActive
	}
	if c.validUntil != nil && req.Now.After(*c.validUntil) {
		return ErrCouponExpired
	}

	if !c.appliesToTarget(req.Target) {
		return ErrCouponNotApplicable
	}

	if c.minPurchase.Valid && req.BasePrice.LessThan(c.minPurchase.Decimal) {
		return ErrBelowMinimumPurchase
	}

	if c.IsExhausted() {
		return ErrUsageLimitExceeded
	}

	if c.perUserLimit != nil && req.PriorRedemptions >= *c.perUserLimit {
		return ErrPerUserLimitExceeded
	}

	return nil
}

func (c *Coupon) appliesToTarget(t Target) bool {
	if c.appliesTo == "" || c.appliesTo == TargetAll {
		return true
	}
	if t.Kind != c.appliesTo {
		return false
	}
	if c.entityID == nil {
		return true
	}
	return t.ID != nil && *t.ID == *c.entityID
}
