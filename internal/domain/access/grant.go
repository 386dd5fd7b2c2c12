package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// Kind is what a grant entitles the member to.
type Kind string

const (
	KindEnrollment          Kind = "enrollment"
	KindPackageSubscription Kind = "package_subscription"
	KindOrder               Kind = "order"
)

// KindFor maps a purchasable kind to the grant it produces.
func KindFor(k catalog.Kind) Kind {
	switch k {
	case catalog.KindCourse:
		return KindEnrollment
	case catalog.KindCoursePackage:
		return KindPackageSubscription
	default:
		return KindOrder
	}
}

// Status represents the grant status.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Grant is the access a member obtains from exactly one payment.
type Grant struct {
	id        uuid.UUID
	userID    uuid.UUID
	paymentID uuid.UUID
	kind      Kind
	targetID  *uuid.UUID
	status    Status
	startsAt  time.Time
	expiresAt *time.Time
	revokedAt *time.Time
	createdAt time.Time
	updatedAt time.Time
}

// NewGrant creates an active grant for the purchased item. Package subscriptions
// expire after durationDays when set; other grants do not expire.
func NewGrant(userID, paymentID uuid.UUID, purchased *catalog.Purchasable) *Grant {
	now := time.Now().UTC()
	g := &Grant{
		id:        uuid.New(),
		userID:    userID,
		paymentID: paymentID,
		kind:      KindFor(purchased.Kind()),
		targetID:  purchased.TargetID(),
		status:    StatusActive,
		startsAt:  now,
		createdAt: now,
		updatedAt: now,
	}
	if g.kind == KindPackageSubscription && purchased.DurationDays() != nil {
		exp := now.AddDate(0, 0, *purchased.DurationDays())
		g.expiresAt = &exp
	}
	return g
}

// Reconstruct rebuilds a Grant from persistence.
func Reconstruct(id, userID, paymentID uuid.UUID, kind Kind, targetID *uuid.UUID, status Status,
	startsAt time.Time, expiresAt, revokedAt *time.Time, createdAt, updatedAt time.Time) *Grant {
	return &Grant{
		id: id, userID: userID, paymentID: paymentID, kind: kind, targetID: targetID,
		status: status, startsAt: startsAt, expiresAt: expiresAt, revokedAt: revokedAt,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// Revoke withdraws the grant, typically after a refund.
func (g *Grant) Revoke() error {
	if g.status != StatusActive {
		return domain.NewInvalidStateError(string(g.status), string(StatusRevoked))
	}
	now := time.Now().UTC()
	g.status = StatusRevoked
	g.revokedAt = &now
	g.updatedAt = now
	return nil
}

// IsActive checks whether the grant is in force at now.
func (g *Grant) IsActive(now time.Time) bool {
	if g.status != StatusActive {
		return false
	}
	return g.expiresAt == nil || now.Before(*g.expiresAt)
}

// Getters.
func (g *Grant) ID() uuid.UUID         { return g.id }
func (g *Grant) UserID() uuid.UUID     { return g.userID }
func (g *Grant) PaymentID() uuid.UUID  { return g.paymentID }
func (g *Grant) Kind() Kind            { return g.kind }
func (g *Grant) TargetID() *uuid.UUID  { return g.targetID }
func (g *Grant) Status() Status        { return g.status }
func (g *Grant) StartsAt() time.Time   { return g.startsAt }
func (g *Grant) ExpiresAt() *time.Time { return g.expiresAt }
func (g *Grant) RevokedAt() *time.Time { return g.revokedAt }
func (g *Grant) CreatedAt() time.Time  { return g.createdAt }
func (g *Grant) UpdatedAt() time.Time  { return g.updatedAt }
