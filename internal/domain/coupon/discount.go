package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// CurrencyPlaces is the precision amounts are rounded to.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Quote is the outcome of pricing a purchase.
type Quote struct {
	Original decimal.Decimal
	Discount decimal.Decimal
	Final    decimal.Decimal
}

// NoDiscount quotes base without a coupon.
func NoDiscount(base decimal.Decimal) Quote {
	return Quote{Original: base, Discount: decimal.Zero, Final: base}
}

// Applied reports whether the quote carries a non-zero discount.
func (q Quote) Applied() bool {
	return q.Discount.IsPositive()
}

// Equal compares two quotes amount by amount.
func (q Quote) Equal(o Quote) bool {
	return q.Original.Equal(o.Original) && q.Discount.Equal(o.Discount) && q.Final.Equal(o.Final)
}

// CalculateDiscount prices base with c. All amounts are rounded to CurrencyPlaces. The
// discount never exceeds base, and for percentage coupons never exceeds max_discount when set.
func CalculateDiscount(base decimal.Decimal, c *Coupon) (Quote, error) {
	if base.IsNegative() {
		return Quote{}, domain.NewValidationError("base price must not be negative")
	}
	base = base.Round(CurrencyPlaces)

	var discount decimal.Decimal
	switch c.discountType {
	case DiscountTypePercentage:
		discount = base.Mul(c.value).Div(hundred).Round(CurrencyPlaces)
		if c.maxDiscount.Valid && discount.GreaterThan(c.maxDiscount.Decimal) {
			discount = c.maxDiscount.Decimal.Round(CurrencyPlaces)
		}
	case DiscountTypeFixed:
		discount = c.value.Round(CurrencyPlaces)
	default:
		return Quote{}, ErrInvalidCouponType
	}

	if discount.GreaterThan(base) {
		discount = base
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	return Quote{
		Original: base,
		Discount: discount,
		Final:    decimal.Max(decimal.Zero, base.Sub(discount)),
	}, nil
}
