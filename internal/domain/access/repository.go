package access

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for access grants.
type Repository interface {
	Save(ctx context.Context, g *Grant) error
	Update(ctx context.Context, g *Grant) error
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Grant, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Grant, error)
}
