//go:build integration

package main_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/internal/repository"
	"github.com/chessclub-academy/service-pricing/pkg/events"
)

// TestCatalogEvents_SyncPriceList verifies that catalog upserts and removals
// published to catalog.events land in the local price list.
func TestCatalogEvents_SyncPriceList(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupPricingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	days := 90
	pkgID := uuid.New()
	publishTestEvent(t, infra.KafkaBrokers, events.TopicCatalogEvents, "service-catalog",
		events.CatalogPackageUpserted, events.CatalogItemEvent{
			ID:           pkgID,
			Title:        "Tournament preparation",
			Price:        decimal.RequireFromString("249.995"),
			DurationDays: &days,
			Active:       true,
		})

	model := waitForPurchasable(t, infra.DB, pkgID, func(m repository.PurchasableModel) bool { return m.Active }, 15*time.Second)
	assert.Equal(t, "course_package", model.Kind)
	assert.True(t, decimal.RequireFromString("250").Equal(model.Price), "price rounded to cents, got %s", model.Price)
	require.NotNil(t, model.DurationDays)
	assert.Equal(t, 90, *model.DurationDays)

	publishTestEvent(t, infra.KafkaBrokers, events.TopicCatalogEvents, "service-catalog",
		events.CatalogItemRemoved, events.CatalogItemRemovedEvent{Kind: "course_package", ID: pkgID})

	waitForPurchasable(t, infra.DB, pkgID, func(m repository.PurchasableModel) bool { return !m.Active }, 15*time.Second)
}

// TestPurchase_ConcurrentBuyersRespectUsageLimit races more buyers than a
// coupon allows and checks the row lock plus conditional increment hold the cap.
func TestPurchase_ConcurrentBuyersRespectUsageLimit(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupPricingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()

	ctx := context.Background()
	courseID := seedCourse(t, infra.DB, 80)
	limit := 3
	created, err := stack.Coupons.CreateCoupon(ctx, uuid.New(), application.CouponRequest{
		Code: "blitz25",
		CouponSettings: application.CouponSettings{
			DiscountType: "percentage",
			Value:        decimal.NewFromInt(25),
			UsageLimit:   &limit,
		},
	})
	require.NoError(t, err)

	const buyers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.Purchases.PurchaseCourse(ctx, uuid.New(), courseID, "", application.PurchaseRequest{
				CouponSelection: application.CouponSelection{CouponCode: "BLITZ25"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, coupon.ErrUsageLimitExceeded):
				rejected++
			default:
				t.Errorf("unexpected purchase error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, succeeded)
	assert.Equal(t, buyers-limit, rejected)

	got, err := stack.Coupons.GetCoupon(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, got.UsesCount)

	var redemptions int64
	require.NoError(t, infra.DB.Model(&repository.CouponRedemptionModel{}).
		Where("coupon_id = ?", created.ID).Count(&redemptions).Error)
	assert.Equal(t, int64(limit), redemptions)

	var payments int64
	require.NoError(t, infra.DB.Model(&repository.PaymentModel{}).
		Where("coupon_id = ?", created.ID).Count(&payments).Error)
	assert.Equal(t, int64(limit), payments)
}

// TestPurchase_PublishesEvents verifies a coupon purchase and its refund are
// announced on pricing.events.
func TestPurchase_PublishesEvents(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupPricingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()

	ctx := context.Background()
	courseID := seedCourse(t, infra.DB, 100)
	_, err := stack.Coupons.CreateCoupon(ctx, uuid.New(), application.CouponRequest{
		Code: "ROOK10",
		CouponSettings: application.CouponSettings{
			DiscountType: "fixed",
			Value:        decimal.NewFromInt(10),
		},
	})
	require.NoError(t, err)

	userID := uuid.New()
	result, err := stack.Purchases.PurchaseCourse(ctx, userID, courseID, "", application.PurchaseRequest{
		CouponSelection: application.CouponSelection{CouponCode: "rook10"},
	})
	require.NoError(t, err)
	assert.True(t, result.FinalPrice.Equal(decimal.NewFromInt(90)))

	ce := consumeOneEvent(t, infra.KafkaBrokers, events.TopicPricingEvents, events.PurchaseCompleted, 15*time.Second)
	var completed events.PurchaseCompletedEvent
	require.NoError(t, ce.ParseData(&completed))
	assert.Equal(t, result.Payment.ID, completed.PaymentID)
	assert.Equal(t, userID, completed.UserID)
	assert.Equal(t, "ROOK10", completed.CouponCode)
	assert.True(t, completed.DiscountAmount.Equal(decimal.NewFromInt(10)))

	ce = consumeOneEvent(t, infra.KafkaBrokers, events.TopicPricingEvents, events.CouponRedeemed, 15*time.Second)
	var redeemed events.CouponRedeemedEvent
	require.NoError(t, ce.ParseData(&redeemed))
	assert.Equal(t, result.Payment.ID, redeemed.PaymentID)

	_, err = stack.Payments.RefundPayment(ctx, result.Payment.ID, "duplicate enrollment")
	require.NoError(t, err)

	ce = consumeOneEvent(t, infra.KafkaBrokers, events.TopicPricingEvents, events.PaymentRefunded, 15*time.Second)
	var refunded events.PaymentRefundedEvent
	require.NoError(t, ce.ParseData(&refunded))
	assert.Equal(t, result.Payment.ID, refunded.PaymentID)
	assert.Equal(t, "duplicate enrollment", refunded.Reason)
	assert.True(t, refunded.Amount.Equal(decimal.NewFromInt(90)))
}
