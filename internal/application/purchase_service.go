package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/domain/access"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/internal/domain/payment"
	"github.com/chessclub-academy/service-pricing/internal/idempotency"
	"github.com/chessclub-academy/service-pricing/internal/metrics"
	"github.com/chessclub-academy/service-pricing/internal/saga"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// ErrItemUnavailable is returned when a course or package has been withdrawn from sale.
var ErrItemUnavailable = domain.NewRejection("item_unavailable", "this item is not available for purchase")

// IdempotencyStore makes purchase requests single-shot; *idempotency.Store satisfies it.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (result string, reserved bool, err error)
	Complete(ctx context.Context, key, result string) error
	Abandon(ctx context.Context, key string) error
}

// CouponSelection names the coupon to apply. CouponID wins when both are set.
type CouponSelection struct {
	CouponCode string     `json:"coupon_code" binding:"max=50"`
	CouponID   *uuid.UUID `json:"coupon_id"`
}

func (c CouponSelection) empty() bool {
	return c.CouponID == nil && strings.TrimSpace(c.CouponCode) == ""
}

// PurchaseRequest is the body of a course or course package purchase.
type PurchaseRequest struct {
	CouponSelection
}

// OrderRequest is the body of an ad-hoc order purchase.
type OrderRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" binding:"max=255"`
	CouponSelection
}

// QuoteRequest prices a purchase without recording it.
type QuoteRequest struct {
	TargetKind string           `json:"target_kind" binding:"required"`
	TargetID   *uuid.UUID       `json:"target_id"`
	Amount     *decimal.Decimal `json:"amount"`
	CouponSelection
}

// QuoteDTO is the priced outcome of a dry run.
type QuoteDTO struct {
	TargetKind    string          `json:"target_kind"`
	TargetID      *uuid.UUID      `json:"target_id,omitempty"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Discount      decimal.Decimal `json:"discount"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	CouponApplied bool            `json:"coupon_applied"`
	CouponID      *uuid.UUID      `json:"coupon_id,omitempty"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	Currency      string          `json:"currency"`
}

// PurchaseDTO is the API response for a recorded purchase.
type PurchaseDTO struct {
	Payment       PaymentDTO      `json:"payment"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Discount      decimal.Decimal `json:"discount"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	CouponApplied bool            `json:"coupon_applied"`
	Grant         *GrantDTO       `json:"grant,omitempty"`
}

// PurchaseService prices and records purchases of courses, course packages and orders.
type PurchaseService struct {
	catalog  catalog.Repository
	coupons  coupon.Repository
	payments payment.Repository
	grants   access.Repository
	sagaSvc  *saga.PurchaseSagaService
	idem     IdempotencyStore
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewPurchaseService creates a new PurchaseService. idem may be nil.
func NewPurchaseService(
	catalogRepo catalog.Repository,
	coupons coupon.Repository,
	payments payment.Repository,
	grants access.Repository,
	sagaSvc *saga.PurchaseSagaService,
	idem IdempotencyStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PurchaseService {
	return &PurchaseService{
		catalog:  catalogRepo,
		coupons:  coupons,
		payments: payments,
		grants:   grants,
		sagaSvc:  sagaSvc,
		idem:     idem,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithClock overrides the time source used for eligibility checks.
func (s *PurchaseService) WithClock(now func() time.Time) *PurchaseService {
	s.now = now
	return s
}

// PurchaseCourse buys a course enrollment.
func (s *PurchaseService) PurchaseCourse(ctx context.Context, userID, courseID uuid.UUID, idemKey string, req PurchaseRequest) (*PurchaseDTO, error) {
	return s.once(ctx, userID, idemKey, func(ctx context.Context) (*PurchaseDTO, error) {
		item, err := s.loadItem(ctx, catalog.KindCourse, courseID)
		if err != nil {
			s.metrics.RecordPurchase(string(catalog.KindCourse), metrics.OutcomeRejected, 0)
			return nil, err
		}
		return s.purchase(ctx, userID, item, req.CouponSelection)
	})
}

// PurchaseCoursePackage buys a course package subscription.
func (s *PurchaseService) PurchaseCoursePackage(ctx context.Context, userID, packageID uuid.UUID, idemKey string, req PurchaseRequest) (*PurchaseDTO, error) {
	return s.once(ctx, userID, idemKey, func(ctx context.Context) (*PurchaseDTO, error) {
		item, err := s.loadItem(ctx, catalog.KindCoursePackage, packageID)
		if err != nil {
			s.metrics.RecordPurchase(string(catalog.KindCoursePackage), metrics.OutcomeRejected, 0)
			return nil, err
		}
		return s.purchase(ctx, userID, item, req.CouponSelection)
	})
}

// PurchaseOrder pays an ad-hoc order total.
func (s *PurchaseService) PurchaseOrder(ctx context.Context, userID uuid.UUID, idemKey string, req OrderRequest) (*PurchaseDTO, error) {
	return s.once(ctx, userID, idemKey, func(ctx context.Context) (*PurchaseDTO, error) {
		item, err := catalog.NewOrderTotal(req.Amount, req.Reference)
		if err != nil {
			return nil, err
		}
		return s.purchase(ctx, userID, item, req.CouponSelection)
	})
}

// Quote prices a purchase for the caller without charging or recording anything.
func (s *PurchaseService) Quote(ctx context.Context, userID uuid.UUID, req QuoteRequest) (*QuoteDTO, error) {
	item, err := s.resolveQuoteTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	c, quote, err := s.price(ctx, userID, item, req.CouponSelection)
	if err != nil {
		return nil, err
	}

	dto := &QuoteDTO{
		TargetKind:    string(item.Kind()),
		TargetID:      item.TargetID(),
		OriginalPrice: quote.Original,
		Discount:      quote.Discount,
		FinalPrice:    quote.Final,
		CouponApplied: c != nil,
		Currency:      s.sagaSvc.Currency(),
	}
	if c != nil {
		id := c.ID()
		dto.CouponID = &id
		dto.CouponCode = c.Code()
	}
	return dto, nil
}

func (s *PurchaseService) resolveQuoteTarget(ctx context.Context, req QuoteRequest) (*catalog.Purchasable, error) {
	if catalog.Kind(strings.ToLower(strings.TrimSpace(req.TargetKind))) == catalog.KindOrder {
		if req.Amount == nil {
			return nil, domain.NewValidationError("amount is required for orders")
		}
		return catalog.NewOrderTotal(*req.Amount, "")
	}

	kind, err := catalog.ParseKind(req.TargetKind)
	if err != nil {
		return nil, err
	}
	if req.TargetID == nil {
		return nil, domain.NewValidationError("target_id is required for " + string(kind))
	}
	return s.loadItem(ctx, kind, *req.TargetID)
}

// ListMyPurchases returns the caller's payments, newest first.
func (s *PurchaseService) ListMyPurchases(ctx context.Context, userID uuid.UUID, page, limit int) ([]PaymentDTO, int64, error) {
	payments, total, err := s.payments.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return toPaymentDTOs(payments), total, nil
}

// GetPurchase returns one purchase. Members may only read their own.
func (s *PurchaseService) GetPurchase(ctx context.Context, requesterID uuid.UUID, isAdmin bool, paymentID uuid.UUID) (*PurchaseDTO, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && p.UserID() != requesterID {
		return nil, domain.NewForbiddenError("you can only view your own purchases")
	}
	return s.toPurchaseDTO(ctx, p)
}

// once runs fn at most once per member and Idempotency-Key. A repeated key returns the
// purchase recorded by the first request.
func (s *PurchaseService) once(ctx context.Context, userID uuid.UUID, idemKey string, fn func(context.Context) (*PurchaseDTO, error)) (*PurchaseDTO, error) {
	if s.idem == nil || idemKey == "" {
		return fn(ctx)
	}

	key := idempotency.Key(userID, idemKey)
	stored, reserved, err := s.idem.Begin(ctx, key)
	if err != nil {
		return nil, err
	}
	if !reserved {
		s.logger.Info("replaying idempotent purchase",
			zap.String("user_id", userID.String()),
			zap.String("payment_id", stored),
		)
		return s.replay(ctx, userID, stored)
	}

	dto, err := fn(ctx)
	if err != nil {
		if abandonErr := s.idem.Abandon(context.WithoutCancel(ctx), key); abandonErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(abandonErr))
		}
		return nil, err
	}

	if err := s.idem.Complete(context.WithoutCancel(ctx), key, dto.Payment.ID.String()); err != nil {
		s.logger.Warn("failed to store idempotency result", zap.String("key", key), zap.Error(err))
	}
	return dto, nil
}

func (s *PurchaseService) replay(ctx context.Context, userID uuid.UUID, stored string) (*PurchaseDTO, error) {
	paymentID, err := uuid.Parse(stored)
	if err != nil {
		return nil, fmt.Errorf("corrupt idempotency record %q: %w", stored, err)
	}
	return s.GetPurchase(ctx, userID, false, paymentID)
}

func (s *PurchaseService) loadItem(ctx context.Context, kind catalog.Kind, id uuid.UUID) (*catalog.Purchasable, error) {
	item, err := s.catalog.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !item.Active() {
		return nil, ErrItemUnavailable
	}
	return item, nil
}

// price quotes item read-only. The returned coupon is nil when none was selected.
func (s *PurchaseService) price(ctx context.Context, userID uuid.UUID, item *catalog.Purchasable, sel CouponSelection) (*coupon.Coupon, coupon.Quote, error) {
	if sel.empty() {
		return nil, coupon.NoDiscount(item.Price()), nil
	}
	c, quote, err := evaluateCoupon(ctx, s.coupons, s.now(), userID, sel.CouponID, sel.CouponCode, item.Price(), saga.TargetOf(item))
	if err != nil {
		if reason := rejectionReason(err); reason != "" {
			s.metrics.RecordValidation(reason)
		}
		return nil, coupon.Quote{}, err
	}
	s.metrics.RecordValidation("valid")
	return c, quote, nil
}

func (s *PurchaseService) purchase(ctx context.Context, userID uuid.UUID, item *catalog.Purchasable, sel CouponSelection) (*PurchaseDTO, error) {
	kind := string(item.Kind())

	c, quote, err := s.price(ctx, userID, item, sel)
	if err != nil {
		s.metrics.RecordPurchase(kind, metrics.OutcomeRejected, 0)
		return nil, err
	}

	result, err := s.sagaSvc.PurchaseSaga(ctx, saga.PurchaseOrder{
		UserID: userID,
		Item:   item,
		Coupon: c,
		Quote:  quote,
	})
	if err != nil {
		s.metrics.RecordPurchase(kind, outcomeOf(err), 0)
		s.logger.Warn("purchase failed",
			zap.String("user_id", userID.String()),
			zap.String("kind", kind),
			zap.String("reason", domain.CodeOf(err)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordPurchase(kind, metrics.OutcomeCompleted, quote.Discount.InexactFloat64())
	s.logger.Info("purchase recorded",
		zap.String("payment_id", result.Payment.ID().String()),
		zap.String("user_id", userID.String()),
		zap.String("kind", kind),
		zap.String("final_amount", quote.Final.StringFixed(coupon.CurrencyPlaces)),
		zap.String("coupon_code", result.Payment.CouponCode()),
	)

	return &PurchaseDTO{
		Payment:       toPaymentDTO(result.Payment),
		OriginalPrice: quote.Original,
		Discount:      quote.Discount,
		FinalPrice:    quote.Final,
		CouponApplied: result.Payment.CouponID() != nil,
		Grant:         toGrantDTO(result.Grant, s.now()),
	}, nil
}

func (s *PurchaseService) toPurchaseDTO(ctx context.Context, p *payment.Payment) (*PurchaseDTO, error) {
	dto := &PurchaseDTO{
		Payment:       toPaymentDTO(p),
		OriginalPrice: p.OriginalAmount(),
		Discount:      p.DiscountAmount(),
		FinalPrice:    p.FinalAmount(),
		CouponApplied: p.CouponID() != nil,
	}
	g, err := s.grants.FindByPaymentID(ctx, p.ID())
	switch {
	case err == nil:
		dto.Grant = toGrantDTO(g, s.now())
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return dto, nil
}

func outcomeOf(err error) string {
	if errors.Is(err, domain.ErrUnprocessable) || errors.Is(err, domain.ErrConflict) {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailed
}
