package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chessclub-academy/service-pricing/internal/domain/access"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/internal/domain/payment"
)

// CouponDTO is the API response representation of a coupon.
type CouponDTO struct {
	ID            uuid.UUID        `json:"id"`
	Code          string           `json:"code"`
	DiscountType  string           `json:"discount_type"`
	Value         decimal.Decimal  `json:"value"`
	MinPurchase   *decimal.Decimal `json:"min_purchase,omitempty"`
	MaxDiscount   *decimal.Decimal `json:"max_discount,omitempty"`
	UsageLimit    *int             `json:"usage_limit,omitempty"`
	UsesCount     int              `json:"uses_count"`
	RemainingUses *int             `json:"remaining_uses,omitempty"`
	PerUserLimit  *int             `json:"per_user_limit,omitempty"`
	ValidFrom     *time.Time       `json:"valid_from,omitempty"`
	ValidUntil    *time.Time       `json:"valid_until,omitempty"`
	AppliesTo     string           `json:"applies_to"`
	EntityID      *uuid.UUID       `json:"entity_id,omitempty"`
	IsActive      bool             `json:"is_active"`
	Description   string           `json:"description,omitempty"`
	CreatedBy     uuid.UUID        `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// RedemptionDTO is one use of a coupon.
type RedemptionDTO struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	RedeemedAt     time.Time       `json:"redeemed_at"`
}

// PaymentDTO is the API response DTO for payment data.
type PaymentDTO struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	TargetKind     string          `json:"target_kind"`
	TargetID       *uuid.UUID      `json:"target_id,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Currency       string          `json:"currency"`
	CouponID       *uuid.UUID      `json:"coupon_id,omitempty"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id"`
	PaymentDate    time.Time       `json:"payment_date"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
	RefundReason   string          `json:"refund_reason,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// GrantDTO is an enrollment, package subscription or order fulfilment.
type GrantDTO struct {
	ID        uuid.UUID  `json:"id"`
	PaymentID uuid.UUID  `json:"payment_id"`
	Kind      string     `json:"kind"`
	TargetID  *uuid.UUID `json:"target_id,omitempty"`
	Status    string     `json:"status"`
	Active    bool       `json:"active"`
	StartsAt  time.Time  `json:"starts_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// CatalogItemDTO is a price list entry.
type CatalogItemDTO struct {
	Kind         string          `json:"kind"`
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	DurationDays *int            `json:"duration_days,omitempty"`
	Active       bool            `json:"active"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toCouponDTO(c *coupon.Coupon) *CouponDTO {
	return &CouponDTO{
		ID:            c.ID(),
		Code:          c.Code(),
		DiscountType:  string(c.DiscountType()),
		Value:         c.Value(),
		MinPurchase:   nullable(c.MinPurchase()),
		MaxDiscount:   nullable(c.MaxDiscount()),
		UsageLimit:    c.UsageLimit(),
		UsesCount:     c.UsesCount(),
		RemainingUses: c.RemainingUses(),
		PerUserLimit:  c.PerUserLimit(),
		ValidFrom:     c.ValidFrom(),
		ValidUntil:    c.ValidUntil(),
		AppliesTo:     string(c.AppliesTo()),
		EntityID:      c.EntityID(),
		IsActive:      c.IsActive(),
		Description:   c.Description(),
		CreatedBy:     c.CreatedBy(),
		CreatedAt:     c.CreatedAt(),
		UpdatedAt:     c.UpdatedAt(),
	}
}

func toCouponDTOs(coupons []*coupon.Coupon) []*CouponDTO {
	dtos := make([]*CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = toCouponDTO(c)
	}
	return dtos
}

func toPaymentDTO(p *payment.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             p.ID(),
		UserID:         p.UserID(),
		TargetKind:     string(p.TargetKind()),
		TargetID:       p.TargetID(),
		Reference:      p.Reference(),
		OriginalAmount: p.OriginalAmount(),
		DiscountAmount: p.DiscountAmount(),
		FinalAmount:    p.FinalAmount(),
		Currency:       p.Currency(),
		CouponID:       p.CouponID(),
		CouponCode:     p.CouponCode(),
		Status:         string(p.Status()),
		TransactionID:  p.TransactionID(),
		PaymentDate:    p.PaymentDate(),
		RefundedAt:     p.RefundedAt(),
		RefundReason:   p.RefundReason(),
		Version:        p.Version(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
	}
}

func toPaymentDTOs(payments []*payment.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toGrantDTO(g *access.Grant, now time.Time) *GrantDTO {
	return &GrantDTO{
		ID:        g.ID(),
		PaymentID: g.PaymentID(),
		Kind:      string(g.Kind()),
		TargetID:  g.TargetID(),
		Status:    string(g.Status()),
		Active:    g.IsActive(now),
		StartsAt:  g.StartsAt(),
		ExpiresAt: g.ExpiresAt(),
		RevokedAt: g.RevokedAt(),
	}
}

func toCatalogItemDTO(p *catalog.Purchasable) *CatalogItemDTO {
	return &CatalogItemDTO{
		Kind:         string(p.Kind()),
		ID:           p.ID(),
		Title:        p.Title(),
		Price:        p.Price(),
		DurationDays: p.DurationDays(),
		Active:       p.Active(),
		UpdatedAt:    p.UpdatedAt(),
	}
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func toNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
