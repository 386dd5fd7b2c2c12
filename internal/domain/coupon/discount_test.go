package coupon

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func newTestCoupon(t *testing.T, p Params) *Coupon {
	t.Helper()
	if p.Code == "" {
		p.Code = "TEST"
	}
	c, err := NewCoupon(p, uuid.New())
	require.NoError(t, err)
	return c
}

func TestCalculateDiscount_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		base     string
		discount string
		final    string
	}{
		{
			name:     "fixed below base",
			params:   Params{DiscountType: DiscountTypeFixed, Value: d("20")},
			base:     "100",
			discount: "20",
			final:    "80",
		},
		{
			name:     "percentage clamped to max discount",
			params:   Params{DiscountType: DiscountTypePercentage, Value: d("50"), MaxDiscount: nd("30")},
			base:     "100",
			discount: "30",
			final:    "70",
		},
		{
			name:     "fixed clamped to base",
			params:   Params{DiscountType: DiscountTypeFixed, Value: d("150")},
			base:     "100",
			discount: "100",
			final:    "0",
		},
		{
			name:     "percentage under max discount",
			params:   Params{DiscountType: DiscountTypePercentage, Value: d("10"), MaxDiscount: nd("30")},
			base:     "120",
			discount: "12",
			final:    "108",
		},
		{
			name:     "percentage rounded to cents",
			params:   Params{DiscountType: DiscountTypePercentage, Value: d("15")},
			base:     "33.33",
			discount: "5",
			final:    "28.33",
		},
		{
			name:     "zero base",
			params:   Params{DiscountType: DiscountTypeFixed, Value: d("10")},
			base:     "0",
			discount: "0",
			final:    "0",
		},
		{
			name:     "hundred percent",
			params:   Params{DiscountType: DiscountTypePercentage, Value: d("100")},
			base:     "49.90",
			discount: "49.90",
			final:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := CalculateDiscount(d(tt.base), newTestCoupon(t, tt.params))
			require.NoError(t, err)
			assert.True(t, d(tt.discount).Equal(q.Discount), "discount: got %s", q.Discount)
			assert.True(t, d(tt.final).Equal(q.Final), "final: got %s", q.Final)
			assert.True(t, d(tt.base).Equal(q.Original))
		})
	}
}

func TestCalculateDiscount_FixedProperty(t *testing.T) {
	for _, base := range []string{"0", "0.01", "19.99", "100", "250.50"} {
		for _, value := range []string{"0", "5", "19.99", "100", "1000"} {
			c := newTestCoupon(t, Params{DiscountType: DiscountTypeFixed, Value: d(value)})
			q, err := CalculateDiscount(d(base), c)
			require.NoError(t, err)

			want := decimal.Min(d(value), d(base))
			assert.True(t, want.Equal(q.Discount), "base %s value %s", base, value)
			assert.True(t, d(base).Sub(want).Equal(q.Final))
			assert.False(t, q.Final.IsNegative())
		}
	}
}

func TestCalculateDiscount_PercentageProperty(t *testing.T) {
	for _, base := range []string{"0", "10", "80", "100", "1234"} {
		for _, value := range []int64{0, 1, 25, 50, 99, 100} {
			for _, max := range []string{"", "0", "15", "500"} {
				p := Params{DiscountType: DiscountTypePercentage, Value: decimal.NewFromInt(value)}
				if max != "" {
					p.MaxDiscount = nd(max)
				}
				q, err := CalculateDiscount(d(base), newTestCoupon(t, p))
				require.NoError(t, err)

				want := d(base).Mul(decimal.NewFromInt(value)).Div(decimal.NewFromInt(100))
				if max != "" {
					want = decimal.Min(want, d(max))
				}
				assert.True(t, want.Equal(q.Discount), "base %s value %d max %q: got %s", base, value, max, q.Discount)
				assert.True(t, q.Discount.LessThanOrEqual(d(base)))
				assert.True(t, q.Original.Sub(q.Discount).Equal(q.Final))
			}
		}
	}
}

func TestCalculateDiscount_UnknownTypeFromStorage(t *testing.T) {
	c := Reconstruct(uuid.New(), "LEGACY", DiscountType("bogo"), d("10"),
		decimal.NullDecimal{}, decimal.NullDecimal{}, nil, 0, nil, nil, nil,
		TargetAll, nil, true, "", uuid.New(), nowUTC(), nowUTC())

	_, err := CalculateDiscount(d("100"), c)
	assert.ErrorIs(t, err, ErrInvalidCouponType)
}

func TestCalculateDiscount_NegativeBase(t *testing.T) {
	_, err := CalculateDiscount(d("-1"), newTestCoupon(t, Params{DiscountType: DiscountTypeFixed, Value: d("1")}))
	assert.Error(t, err)
}

func TestQuote_NoDiscount(t *testing.T) {
	q := NoDiscount(d("75"))
	assert.False(t, q.Applied())
	assert.True(t, q.Final.Equal(d("75")))
	assert.True(t, q.Equal(Quote{Original: d("75.00"), Discount: decimal.Zero, Final: d("75")}))
}

func TestCalculateDiscount_RoundsToCurrencyPlaces(t *testing.T) {
	atCents := func(t *testing.T, q Quote) {
		t.Helper()
		for _, v := range []decimal.Decimal{q.Original, q.Discount, q.Final} {
			assert.True(t, v.Equal(v.Round(CurrencyPlaces)), "%s is not at cent precision", v)
		}
	}

	fixed := newTestCoupon(t, Params{DiscountType: DiscountTypeFixed, Value: d("10.005")})
	q, err := CalculateDiscount(d("100"), fixed)
	require.NoError(t, err)
	atCents(t, q)
	assert.True(t, q.Discount.Equal(d("10.01")), "discount %s", q.Discount)
	assert.True(t, q.Final.Equal(d("89.99")), "final %s", q.Final)

	// Rows written before rounding was enforced still price at cent precision.
	stored := Reconstruct(uuid.New(), "LEGACY", DiscountTypePercentage, d("50"),
		decimal.NullDecimal{}, nd("5.555"), nil, 0, nil, nil, nil,
		TargetAll, nil, true, "", uuid.New(), nowUTC(), nowUTC())
	q, err = CalculateDiscount(d("99.999"), stored)
	require.NoError(t, err)
	atCents(t, q)
	assert.True(t, q.Original.Equal(d("100")), "original %s", q.Original)
	assert.True(t, q.Discount.Equal(d("5.56")), "discount %s", q.Discount)
	assert.True(t, q.Final.Equal(d("94.44")), "final %s", q.Final)
}
