// Package purchase declares the transactional boundary used to record a purchase.
package purchase

import (
	"context"

	"github.com/chessclub-academy/service-pricing/internal/domain/access"
	"github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/internal/domain/payment"
)

// Stores are repositories bound to a single transaction.
type Stores struct {
	Coupons  coupon.Repository
	Payments payment.Repository
	Grants   access.Repository
}

// UnitOfWork runs fn inside one transaction. Everything fn writes through the given
// Stores is committed when fn returns nil and rolled back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
