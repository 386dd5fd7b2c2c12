// Package events holds the Kafka topics, CloudEvent types and payloads exchanged
// between the pricing service and the rest of the academy platform.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics.
const (
	TopicPricingEvents = "pricing.events"
	TopicCatalogEvents = "catalog.events"
)

// Event types published by the pricing service.
const (
	PurchaseCompleted = "pricing.purchase.completed"
	PurchaseFailed    = "pricing.purchase.failed"
	CouponRedeemed    = "pricing.coupon.redeemed"
	PaymentRefunded   = "pricing.payment.refunded"
)

// Event types consumed from the catalog service.
const (
	CatalogCourseUpserted  = "catalog.course.upserted"
	CatalogPackageUpserted = "catalog.package.upserted"
	CatalogItemRemoved     = "catalog.item.removed"
)

// PurchaseCompletedEvent is emitted once a purchase has been charged and recorded.
type PurchaseCompletedEvent struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	UserID         uuid.UUID       `json:"user_id"`
	TargetKind     string          `json:"target_kind"`
	TargetID       *uuid.UUID      `json:"target_id,omitempty"`
	GrantID        uuid.UUID       `json:"grant_id"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Currency       string          `json:"currency"`
	CouponID       *uuid.UUID      `json:"coupon_id,omitempty"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// PurchaseFailedEvent is emitted when a charged purchase could not be completed.
type PurchaseFailedEvent struct {
	UserID     uuid.UUID  `json:"user_id"`
	TargetKind string     `json:"target_kind"`
	TargetID   *uuid.UUID `json:"target_id,omitempty"`
	Reason     string     `json:"reason"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// CouponRedeemedEvent is emitted for every purchase that applied a coupon.
type CouponRedeemedEvent struct {
	CouponID       uuid.UUID       `json:"coupon_id"`
	Code           string          `json:"code"`
	UserID         uuid.UUID       `json:"user_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// PaymentRefundedEvent is emitted after an admin refund.
type PaymentRefundedEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// CatalogItemEvent carries a course or course package price list entry.
type CatalogItemEvent struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	DurationDays *int            `json:"duration_days,omitempty"`
	Active       bool            `json:"active"`
}

// CatalogItemRemovedEvent withdraws an entry from sale.
type CatalogItemRemovedEvent struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}
