package coupon

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// DiscountType is the closed set of discount kinds.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// ParseDiscountType rejects anything but percentage or fixed.
func ParseDiscountType(s string) (DiscountType, error) {
	switch t := DiscountType(strings.ToLower(strings.TrimSpace(s))); t {
	case DiscountTypePercentage, DiscountTypeFixed:
		return t, nil
	default:
		return "", &domain.DomainError{
			Err:     domain.ErrValidation,
			Code:    "invalid_coupon_type",
			Message: fmt.Sprintf("invalid discount type %q: must be percentage or fixed", s),
		}
	}
}

// TargetKind names the kind of purchasable a coupon can be scoped to.
type TargetKind string

const (
	TargetAll           TargetKind = "all"
	TargetCourse        TargetKind = "course"
	TargetCoursePackage TargetKind = "course_package"
	TargetOrder         TargetKind = "order"
)

// ParseTargetKind accepts the scoping kinds. An empty string means all.
func ParseTargetKind(s string) (TargetKind, error) {
	switch k := TargetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return TargetAll, nil
	case TargetAll, TargetCourse, TargetCoursePackage, TargetOrder:
		return k, nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("invalid applies_to %q", s))
	}
}

const maxCodeLength = 50

// Params are the admin-editable settings of a coupon.
type Params struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinPurchase  decimal.NullDecimal
	MaxDiscount  decimal.NullDecimal
	UsageLimit   *int
	PerUserLimit *int
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	AppliesTo    TargetKind
	EntityID     *uuid.UUID
	IsActive     bool
	Description  string
}

// Coupon is the aggregate root for discount rules.
type Coupon struct {
	id           uuid.UUID
	code         string
	discountType DiscountType
	value        decimal.Decimal
	minPurchase  decimal.NullDecimal
	maxDiscount  decimal.NullDecimal
	usageLimit   *int
	usesCount    int
	perUserLimit *int
	validFrom    *time.Time
	validUntil   *time.Time
	appliesTo    TargetKind
	entityID     *uuid.UUID
	isActive     bool
	description  string
	createdBy    uuid.UUID
	createdAt    time.Time
	updatedAt    time.Time
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCoupon validates p and creates a coupon with a zero usage counter.
func NewCoupon(p Params, createdBy uuid.UUID) (*Coupon, error) {
	p, err := validate(p)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Coupon{
		id:        uuid.New(),
		createdBy: createdBy,
		createdAt: now,
	}
	c.apply(p, now)
	return c, nil
}

// Update replaces the editable settings. The usage counter is preserved.
func (c *Coupon) Update(p Params) error {
	p, err := validate(p)
	if err != nil {
		return err
	}
	c.apply(p, time.Now().UTC())
	return nil
}

// Activate marks the coupon active.
func (c *Coupon) Activate() {
	c.isActive = true
	c.updatedAt = time.Now().UTC()
}

// Deactivate marks the coupon inactive; it is rejected regardless of its window.
func (c *Coupon) Deactivate() {
	c.isActive = false
	c.updatedAt = time.Now().UTC()
}

func (c *Coupon) apply(p Params, now time.Time) {
	c.code = p.Code
	c.discountType = p.DiscountType
	c.value = p.Value
	c.minPurchase = p.MinPurchase
	c.maxDiscount = p.MaxDiscount
	c.usageLimit = p.UsageLimit
	c.perUserLimit = p.PerUserLimit
	c.validFrom = p.ValidFrom
	c.validUntil = p.ValidUntil
	c.appliesTo = p.AppliesTo
	c.entityID = p.EntityID
	c.isActive = p.IsActive
	c.description = strings.TrimSpace(p.Description)
	c.updatedAt = now
}

func validate(p Params) (Params, error) {
	p.Code = NormalizeCode(p.Code)
	if p.Code == "" {
		return p, domain.NewValidationError("coupon code is required")
	}
	if len(p.Code) > maxCodeLength {
		return p, domain.NewValidationError(fmt.Sprintf("coupon code must be at most %d characters", maxCodeLength))
	}
	if strings.ContainsAny(p.Code, " \t\n") {
		return p, domain.NewValidationError("coupon code must not contain whitespace")
	}

	dt, err := ParseDiscountType(string(p.DiscountType))
	if err != nil {
		return p, err
	}
	p.DiscountType = dt

	p.Value = p.Value.Round(CurrencyPlaces)
	if p.MinPurchase.Valid {
		p.MinPurchase.Decimal = p.MinPurchase.Decimal.Round(CurrencyPlaces)
	}
	if p.MaxDiscount.Valid {
		p.MaxDiscount.Decimal = p.MaxDiscount.Decimal.Round(CurrencyPlaces)
	}
	if p.Value.IsNegative() {
		return p, domain.NewValidationError("discount value must not be negative")
	}
	if dt == DiscountTypePercentage && p.Value.GreaterThan(decimal.NewFromInt(100)) {
		return p, domain.NewValidationError("percentage discount cannot exceed 100")
	}
	if p.MinPurchase.Valid && p.MinPurchase.Decimal.IsNegative() {
		return p, domain.NewValidationError("min_purchase must not be negative")
	}
	if p.MaxDiscount.Valid && p.MaxDiscount.Decimal.IsNegative() {
		return p, domain.NewValidationError("max_discount must not be negative")
	}
	if p.UsageLimit != nil && *p.UsageLimit < 1 {
		return p, domain.NewValidationError("usage_limit must be at least 1")
	}
	if p.PerUserLimit != nil && *p.PerUserLimit < 1 {
		return p, domain.NewValidationError("per_user_limit must be at least 1")
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && p.ValidUntil.Before(*p.ValidFrom) {
		return p, domain.NewValidationError("valid_until must not be before valid_from")
	}

	kind, err := ParseTargetKind(string(p.AppliesTo))
	if err != nil {
		return p, err
	}
	p.AppliesTo = kind
	if p.EntityID != nil && kind == TargetAll {
		return p, domain.NewValidationError("entity_id requires applies_to to name a purchasable kind")
	}

	if p.ValidFrom != nil {
		t := p.ValidFrom.UTC()
		p.ValidFrom = &t
	}
	if p.ValidUntil != nil {
		t := p.ValidUntil.UTC()
		p.ValidUntil = &t
	}
	return p, nil
}

// Reconstruct rebuilds a Coupon from persistence without validation.
func Reconstruct(
	id uuid.UUID,
	code string,
	discountType DiscountType,
	value decimal.Decimal,
	minPurchase, maxDiscount decimal.NullDecimal,
	usageLimit *int,
	usesCount int,
	perUserLimit *int,
	validFrom, validUntil *time.Time,
	appliesTo TargetKind,
	entityID *uuid.UUID,
	isActive bool,
	description string,
	createdBy uuid.UUID,
	createdAt, updatedAt time.Time,
) *Coupon {
	return &Coupon{
		id: id, code: code, discountType: discountType, value: value,
		minPurchase: minPurchase, maxDiscount: maxDiscount,
		usageLimit: usageLimit, usesCount: usesCount, perUserLimit: perUserLimit,
		validFrom: validFrom, validUntil: validUntil,
		appliesTo: appliesTo, entityID: entityID,
		isActive: isActive, description: description,
		createdBy: createdBy, createdAt: createdAt, updatedAt: updatedAt,
	}
}

// IsExhausted reports whether the usage limit has been reached.
func (c *Coupon) IsExhausted() bool {
	return c.usageLimit != nil && c.usesCount >= *c.usageLimit
}

// RemainingUses returns nil when the coupon is unlimited.
func (c *Coupon) RemainingUses() *int {
	if c.usageLimit == nil {
		return nil
	}
	left := *c.usageLimit - c.usesCount
	if left < 0 {
		left = 0
	}
	return &left
}

// Getters.
func (c *Coupon) ID() uuid.UUID                    { return c.id }
func (c *Coupon) Code() string                     { return c.code }
func (c *Coupon) DiscountType() DiscountType       { return c.discountType }
func (c *Coupon) Value() decimal.Decimal           { return c.value }
func (c *Coupon) MinPurchase() decimal.NullDecimal { return c.minPurchase }
func (c *Coupon) MaxDiscount() decimal.NullDecimal { return c.maxDiscount }
func (c *Coupon) UsageLimit() *int                 { return c.usageLimit }
func (c *Coupon) UsesCount() int                   { return c.usesCount }
func (c *Coupon) PerUserLimit() *int               { return c.perUserLimit }
func (c *Coupon) ValidFrom() *time.Time            { return c.validFrom }
func (c *Coupon) ValidUntil() *time.Time           { return c.validUntil }
func (c *Coupon) AppliesTo() TargetKind            { return c.appliesTo }
func (c *Coupon) EntityID() *uuid.UUID             { return c.entityID }
func (c *Coupon) IsActive() bool                   { return c.isActive }
func (c *Coupon) Description() string              { return c.description }
func (c *Coupon) CreatedBy() uuid.UUID             { return c.createdBy }
func (c *Coupon) CreatedAt() time.Time             { return c.createdAt }
func (c *Coupon) UpdatedAt() time.Time             { return c.updatedAt }
