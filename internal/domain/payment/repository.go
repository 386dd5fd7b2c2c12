package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusTotals aggregates payments sharing a status.
type StatusTotals struct {
	Count    int64
	Revenue  decimal.Decimal
	Discount decimal.Decimal
}

// Repository defines the persistence contract for Payment aggregates.
type Repository interface {
	// FindByID retrieves a payment by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// ListByUser retrieves a member's payments, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]*Payment, int64, error)

	// ListAll retrieves all payments with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Payment, int64, error)

	// GetStats returns final and discount totals per status (admin).
	GetStats(ctx context.Context) (map[Status]StatusTotals, error)

	// Save persists a new payment aggregate.
	Save(ctx context.Context, payment *Payment) error

	// Update persists changes to an existing payment aggregate with optimistic locking.
	Update(ctx context.Context, payment *Payment) error
}
