package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// Status represents the state of a purchase payment.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
)

// Payment is the aggregate root for a recorded purchase. Amounts never change after creation.
type Payment struct {
	id             uuid.UUID
	userID         uuid.UUID
	targetKind     catalog.Kind
	targetID       *uuid.UUID
	reference      string
	originalAmount decimal.Decimal
	discountAmount decimal.Decimal
	finalAmount    decimal.Decimal
	currency       string
	couponID       *uuid.UUID
	couponCode     string
	status         Status
	transactionID  string
	paymentDate    time.Time
	refundedAt     *time.Time
	refundReason   string
	version        int64
	createdAt      time.Time
	updatedAt      time.Time
}

// NewPaymentParams holds the inputs of a completed charge.
type NewPaymentParams struct {
	UserID         uuid.UUID
	TargetKind     catalog.Kind
	TargetID       *uuid.UUID
	Reference      string
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	Currency       string
	CouponID       *uuid.UUID
	CouponCode     string
	TransactionID  string
}

// NewPayment records a completed charge. The final amount is derived as
// max(0, original - discount) and the discount may not exceed the original amount.
func NewPayment(p NewPaymentParams) (*Payment, error) {
	if p.UserID == uuid.Nil {
		return nil, domain.NewValidationError("user id is required")
	}
	if p.OriginalAmount.IsNegative() || p.DiscountAmount.IsNegative() {
		return nil, domain.NewValidationError("amounts must not be negative")
	}
	if p.DiscountAmount.GreaterThan(p.OriginalAmount) {
		return nil, domain.NewValidationError("discount must not exceed the original amount")
	}
	if p.CouponID == nil && p.DiscountAmount.IsPositive() {
		return nil, domain.NewValidationError("a discount requires a coupon")
	}

	now := time.Now().UTC()
	return &Payment{
		id:             uuid.New(),
		userID:         p.UserID,
		targetKind:     p.TargetKind,
		targetID:       p.TargetID,
		reference:      strings.TrimSpace(p.Reference),
		originalAmount: p.OriginalAmount,
		discountAmount: p.DiscountAmount,
		finalAmount:    decimal.Max(decimal.Zero, p.OriginalAmount.Sub(p.DiscountAmount)),
		currency:       strings.ToUpper(p.Currency),
		couponID:       p.CouponID,
		couponCode:     p.CouponCode,
		status:         StatusCompleted,
		transactionID:  p.TransactionID,
		paymentDate:    now,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// --- Getters ---

func (p *Payment) ID() uuid.UUID                   { return p.id }
func (p *Payment) UserID() uuid.UUID               { return p.userID }
func (p *Payment) TargetKind() catalog.Kind        { return p.targetKind }
func (p *Payment) TargetID() *uuid.UUID            { return p.targetID }
func (p *Payment) Reference() string               { return p.reference }
func (p *Payment) OriginalAmount() decimal.Decimal { return p.originalAmount }
func (p *Payment) DiscountAmount() decimal.Decimal { return p.discountAmount }
func (p *Payment) FinalAmount() decimal.Decimal    { return p.finalAmount }
func (p *Payment) Currency() string                { return p.currency }
func (p *Payment) CouponID() *uuid.UUID            { return p.couponID }
func (p *Payment) CouponCode() string              { return p.couponCode }
func (p *Payment) Status() Status                  { return p.status }
func (p *Payment) TransactionID() string           { return p.transactionID }
func (p *Payment) PaymentDate() time.Time          { return p.paymentDate }
func (p *Payment) RefundedAt() *time.Time          { return p.refundedAt }
func (p *Payment) RefundReason() string            { return p.refundReason }
func (p *Payment) Version() int64                  { return p.version }
func (p *Payment) CreatedAt() time.Time            { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time            { return p.updatedAt }

// --- Behavior / State Transitions ---

// Refund transitions a completed payment to refunded.
func (p *Payment) Refund(reason string) error {
	if p.status != StatusCompleted {
		return domain.NewInvalidStateError(string(p.status), string(StatusRefunded))
	}
	now := time.Now().UTC()
	p.status = StatusRefunded
	p.refundedAt = &now
	p.refundReason = reason
	p.updatedAt = now
	return nil
}

// MarkFailed flags a completed payment whose settlement was later reversed by the gateway.
func (p *Payment) MarkFailed(reason string) error {
	if p.status != StatusCompleted {
		return domain.NewInvalidStateError(string(p.status), string(StatusFailed))
	}
	p.status = StatusFailed
	p.refundReason = reason
	p.updatedAt = time.Now().UTC()
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (p *Payment) IncrementVersion() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// --- Reconstitution (used by repository to rebuild from persistence) ---

// Reconstitute rebuilds a Payment from persisted data.
func Reconstitute(
	id, userID uuid.UUID,
	targetKind catalog.Kind,
	targetID *uuid.UUID,
	reference string,
	originalAmount, discountAmount, finalAmount decimal.Decimal,
	currency string,
	couponID *uuid.UUID,
	couponCode string,
	status Status,
	transactionID string,
	paymentDate time.Time,
	refundedAt *time.Time,
	refundReason string,
	version int64,
	createdAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:             id,
		userID:         userID,
		targetKind:     targetKind,
		targetID:       targetID,
		reference:      reference,
		originalAmount: originalAmount,
		discountAmount: discountAmount,
		finalAmount:    finalAmount,
		currency:       currency,
		couponID:       couponID,
		couponCode:     couponCode,
		status:         status,
		transactionID:  transactionID,
		paymentDate:    paymentDate,
		refundedAt:     refundedAt,
		refundReason:   refundReason,
		version:        version,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}
