package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// Kind is the kind of thing a member can pay for.
type Kind string

const (
	KindCourse        Kind = "course"
	KindCoursePackage Kind = "course_package"
	KindOrder         Kind = "order"
)

// ParseKind accepts course and course_package, plus the URL form course-package.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")); k {
	case KindCourse, KindCoursePackage:
		return k, nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("invalid catalog kind %q", s))
	}
}

// Purchasable is a priced course or course package replicated from the catalog,
// or an ad-hoc order total.
type Purchasable struct {
	kind         Kind
	id           uuid.UUID
	title        string
	price        decimal.Decimal
	durationDays *int
	active       bool
	updatedAt    time.Time
}

// NewPurchasable validates and builds a catalog entry.
func NewPurchasable(kind Kind, id uuid.UUID, title string, price decimal.Decimal, durationDays *int, active bool) (*Purchasable, error) {
	if kind != KindCourse && kind != KindCoursePackage {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid catalog kind %q", kind))
	}
	if id == uuid.Nil {
		return nil, domain.NewValidationError("catalog id is required")
	}
	if price.IsNegative() {
		return nil, domain.NewValidationError("price must not be negative")
	}
	if durationDays != nil && *durationDays < 1 {
		return nil, domain.NewValidationError("duration_days must be at least 1")
	}
	return &Purchasable{
		kind:         kind,
		id:           id,
		title:        strings.TrimSpace(title),
		price:        price.Round(2),
		durationDays: durationDays,
		active:       active,
		updatedAt:    time.Now().UTC(),
	}, nil
}

// NewOrderTotal builds the purchasable for a generic order of amount.
func NewOrderTotal(amount decimal.Decimal, reference string) (*Purchasable, error) {
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("order amount must be positive")
	}
	return &Purchasable{
		kind:      KindOrder,
		title:     strings.TrimSpace(reference),
		price:     amount.Round(2),
		active:    true,
		updatedAt: time.Now().UTC(),
	}, nil
}

// Reconstruct rebuilds a Purchasable from persistence.
func Reconstruct(kind Kind, id uuid.UUID, title string, price decimal.Decimal, durationDays *int, active bool, updatedAt time.Time) *Purchasable {
	return &Purchasable{kind: kind, id: id, title: title, price: price, durationDays: durationDays, active: active, updatedAt: updatedAt}
}

// TargetID returns nil for ad-hoc orders.
func (p *Purchasable) TargetID() *uuid.UUID {
	if p.kind == KindOrder || p.id == uuid.Nil {
		return nil
	}
	id := p.id
	return &id
}

// Deactivate withdraws the entry from sale.
func (p *Purchasable) Deactivate() {
	p.active = false
	p.updatedAt = time.Now().UTC()
}

func (p *Purchasable) Kind() Kind             { return p.kind }
func (p *Purchasable) ID() uuid.UUID          { return p.id }
func (p *Purchasable) Title() string          { return p.title }
func (p *Purchasable) Price() decimal.Decimal { return p.price }
func (p *Purchasable) DurationDays() *int     { return p.durationDays }
func (p *Purchasable) Active() bool           { return p.active }
func (p *Purchasable) UpdatedAt() time.Time   { return p.updatedAt }

// Repository persists the local price list.
type Repository interface {
	// FindByID returns a not-found DomainError when the entry is unknown.
	FindByID(ctx context.Context, kind Kind, id uuid.UUID) (*Purchasable, error)
	Upsert(ctx context.Context, p *Purchasable) error
}
