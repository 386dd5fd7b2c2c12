package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/adapter"
	"github.com/chessclub-academy/service-pricing/internal/domain/access"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/internal/domain/payment"
	"github.com/chessclub-academy/service-pricing/internal/domain/purchase"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
	"github.com/chessclub-academy/service-pricing/pkg/events"
	"github.com/chessclub-academy/service-pricing/pkg/kafka"
)

const (
	eventSource       = "service-pricing"
	freeTransactionID = "free_"
)

// EventPublisher publishes CloudEvents; *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// PurchaseOrder is a purchase that has been priced and passed the read-only checks.
type PurchaseOrder struct {
	UserID uuid.UUID
	Item   *catalog.Purchasable
	Coupon *coupon.Coupon
	Quote  coupon.Quote
}

// PurchaseResult is what a completed purchase saga recorded.
type PurchaseResult struct {
	Payment *payment.Payment
	Grant   *access.Grant
}

// PurchaseSagaService orchestrates purchase and refund workflows.
type PurchaseSagaService struct {
	uow       purchase.UnitOfWork
	payments  payment.Repository
	gateway   adapter.PaymentGateway
	publisher EventPublisher
	currency  string
	now       func() time.Time
	logger    *zap.Logger
}

// NewPurchaseSagaService creates a new PurchaseSagaService.
func NewPurchaseSagaService(
	uow purchase.UnitOfWork,
	payments payment.Repository,
	gateway adapter.PaymentGateway,
	publisher EventPublisher,
	currency string,
	logger *zap.Logger,
) *PurchaseSagaService {
	return &PurchaseSagaService{
		uow:       uow,
		payments:  payments,
		gateway:   gateway,
		publisher: publisher,
		currency:  strings.ToUpper(currency),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// WithClock overrides the time source used for eligibility checks.
func (s *PurchaseSagaService) WithClock(now func() time.Time) *PurchaseSagaService {
	s.now = now
	return s
}

// Currency returns the ISO currency purchases are charged in.
func (s *PurchaseSagaService) Currency() string {
	return s.currency
}

// PurchaseSaga charges the quoted final amount, records the purchase in one transaction
// and publishes the outcome. A failure after the charge refunds it.
func (s *PurchaseSagaService) PurchaseSaga(ctx context.Context, order PurchaseOrder) (*PurchaseResult, error) {
	var (
		transactionID string
		charged       bool
		result        PurchaseResult
	)

	saga := NewSaga("purchase", s.logger)

	// Step 1: Charge the member
	saga.AddStep(SagaStep{
		Name: "charge",
		Execute: func(ctx context.Context) error {
			if order.Quote.Final.IsZero() {
				transactionID = freeTransactionID + adapter.NewTransactionSuffix()
				return nil
			}
			var err error
			transactionID, err = s.gateway.Charge(ctx, order.Quote.Final, s.currency, reference(order))
			if err != nil {
				return gatewayError("payment could not be charged", err)
			}
			charged = true
			return nil
		},
		Compensate: func(ctx context.Context) error {
			if !charged {
				return nil
			}
			return s.gateway.Refund(ctx, transactionID, order.Quote.Final)
		},
	})

	// Step 2: Re-check the coupon under lock and write payment, usage, redemption and grant
	saga.AddStep(SagaStep{
		Name: "record_purchase",
		Execute: func(ctx context.Context) error {
			return s.uow.Do(ctx, func(ctx context.Context, st purchase.Stores) error {
				return s.record(ctx, st, order, transactionID, &result)
			})
		},
		Compensate: nil, // The transaction has already rolled back
	})

	// Step 3: Publish events
	saga.AddStep(SagaStep{
		Name: "publish",
		Execute: func(ctx context.Context) error {
			s.publishCompleted(ctx, result)
			return nil
		},
		Compensate: nil,
	})

	if err := saga.Execute(ctx); err != nil {
		if charged {
			s.publishFailedEvent(ctx, order, err.Error())
		}
		return nil, err
	}

	return &result, nil
}

func (s *PurchaseSagaService) record(ctx context.Context, st purchase.Stores, order PurchaseOrder, transactionID string, out *PurchaseResult) error {
	var (
		couponID   *uuid.UUID
		couponCode string
	)

	if order.Coupon != nil {
		locked, err := st.Coupons.FindForUpdate(ctx, order.Coupon.ID())
		if err != nil {
			return err
		}
		prior, err := st.Coupons.CountUserRedemptions(ctx, locked.ID(), order.UserID)
		if err != nil {
			return err
		}
		if err := coupon.CheckEligibility(locked, coupon.EligibilityRequest{
			BasePrice:        order.Quote.Original,
			PurchaserID:      order.UserID,
			Target:           TargetOf(order.Item),
			Now:              s.now(),
			PriorRedemptions: prior,
		}); err != nil {
			return err
		}
		quote, err := coupon.CalculateDiscount(order.Quote.Original, locked)
		if err != nil {
			return err
		}
		if !quote.Equal(order.Quote) {
			return domain.NewConflictError("coupon changed while the purchase was in progress, please retry")
		}

		id := locked.ID()
		couponID = &id
		couponCode = locked.Code()
	}

	p, err := payment.NewPayment(payment.NewPaymentParams{
		UserID:         order.UserID,
		TargetKind:     order.Item.Kind(),
		TargetID:       order.Item.TargetID(),
		Reference:      order.Item.Title(),
		OriginalAmount: order.Quote.Original,
		DiscountAmount: order.Quote.Discount,
		Currency:       s.currency,
		CouponID:       couponID,
		CouponCode:     couponCode,
		TransactionID:  transactionID,
	})
	if err != nil {
		return err
	}
	if err := st.Payments.Save(ctx, p); err != nil {
		return err
	}

	if couponID != nil {
		if err := st.Coupons.IncrementUsageAtomic(ctx, *couponID); err != nil {
			return err
		}
		red := coupon.NewRedemption(*couponID, order.UserID, p.ID(), order.Quote.Discount)
		if err := st.Coupons.SaveRedemption(ctx, red); err != nil {
			return err
		}
	}

	g := access.NewGrant(order.UserID, p.ID(), order.Item)
	if err := st.Grants.Save(ctx, g); err != nil {
		return err
	}

	out.Payment = p
	out.Grant = g
	return nil
}

// RefundSaga returns the charge, marks the payment refunded and revokes its grant.
// Coupon usage is left as is.
func (s *PurchaseSagaService) RefundSaga(ctx context.Context, paymentID uuid.UUID, reason string) (*payment.Payment, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status() != payment.StatusCompleted {
		return nil, domain.NewInvalidStateError(string(p.Status()), string(payment.StatusRefunded))
	}

	saga := NewSaga("refund", s.logger)

	// Step 1: Refund through the gateway
	saga.AddStep(SagaStep{
		Name: "refund_charge",
		Execute: func(ctx context.Context) error {
			if p.FinalAmount().IsZero() || strings.HasPrefix(p.TransactionID(), freeTransactionID) {
				return nil
			}
			if err := s.gateway.Refund(ctx, p.TransactionID(), p.FinalAmount()); err != nil {
				return gatewayError("payment could not be refunded", err)
			}
			return nil
		},
		Compensate: nil, // Cannot undo a gateway refund
	})

	// Step 2: Refund in domain model and revoke access
	saga.AddStep(SagaStep{
		Name: "record_refund",
		Execute: func(ctx context.Context) error {
			return s.uow.Do(ctx, func(ctx context.Context, st purchase.Stores) error {
				fresh, err := st.Payments.FindByID(ctx, paymentID)
				if err != nil {
					return err
				}
				if err := fresh.Refund(reason); err != nil {
					return err
				}
				fresh.IncrementVersion()
				if err := st.Payments.Update(ctx, fresh); err != nil {
					return err
				}
				p = fresh

				g, err := st.Grants.FindByPaymentID(ctx, paymentID)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return nil
					}
					return err
				}
				if g.Status() == access.StatusRevoked {
					return nil
				}
				if err := g.Revoke(); err != nil {
					return err
				}
				return st.Grants.Update(ctx, g)
			})
		},
		Compensate: nil,
	})

	// Step 3: Publish PaymentRefundedEvent
	saga.AddStep(SagaStep{
		Name: "publish",
		Execute: func(ctx context.Context) error {
			s.publish(ctx, events.PaymentRefunded, p.ID().String(), events.PaymentRefundedEvent{
				PaymentID:  p.ID(),
				UserID:     p.UserID(),
				Amount:     p.FinalAmount(),
				Currency:   p.Currency(),
				Reason:     reason,
				OccurredAt: s.now(),
			})
			return nil
		},
		Compensate: nil,
	})

	if err := saga.Execute(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// MarkFailed records a gateway reversal of a completed payment and revokes its grant.
// Nothing is sent to the gateway.
func (s *PurchaseSagaService) MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*payment.Payment, error) {
	var out *payment.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, st purchase.Stores) error {
		p, err := st.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := p.MarkFailed(reason); err != nil {
			return err
		}
		p.IncrementVersion()
		if err := st.Payments.Update(ctx, p); err != nil {
			return err
		}
		out = p

		g, err := st.Grants.FindByPaymentID(ctx, paymentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if g.Status() == access.StatusRevoked {
			return nil
		}
		if err := g.Revoke(); err != nil {
			return err
		}
		return st.Grants.Update(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func gatewayError(msg string, cause error) error {
	return &domain.DomainError{Err: domain.ErrUnprocessable, Code: "payment_failed", Message: msg, Cause: cause}
}

// TargetOf describes a purchasable for the eligibility checker.
func TargetOf(item *catalog.Purchasable) coupon.Target {
	return coupon.Target{Kind: coupon.TargetKind(item.Kind()), ID: item.TargetID()}
}

func reference(order PurchaseOrder) string {
	if id := order.Item.TargetID(); id != nil {
		return fmt.Sprintf("%s:%s", order.Item.Kind(), id)
	}
	return fmt.Sprintf("%s:%s", order.Item.Kind(), order.Item.Title())
}

func (s *PurchaseSagaService) publishCompleted(ctx context.Context, result PurchaseResult) {
	p := result.Payment
	now := s.now()
	s.publish(ctx, events.PurchaseCompleted, p.ID().String(), events.PurchaseCompletedEvent{
		PaymentID:      p.ID(),
		UserID:         p.UserID(),
		TargetKind:     string(p.TargetKind()),
		TargetID:       p.TargetID(),
		GrantID:        result.Grant.ID(),
		OriginalAmount: p.OriginalAmount(),
		DiscountAmount: p.DiscountAmount(),
		FinalAmount:    p.FinalAmount(),
		Currency:       p.Currency(),
		CouponID:       p.CouponID(),
		CouponCode:     p.CouponCode(),
		OccurredAt:     now,
	})

	if p.CouponID() != nil {
		s.publish(ctx, events.CouponRedeemed, p.CouponID().String(), events.CouponRedeemedEvent{
			CouponID:       *p.CouponID(),
			Code:           p.CouponCode(),
			UserID:         p.UserID(),
			PaymentID:      p.ID(),
			DiscountAmount: p.DiscountAmount(),
			OccurredAt:     now,
		})
	}
}

// publishFailedEvent publishes a PurchaseFailedEvent to Kafka.
func (s *PurchaseSagaService) publishFailedEvent(ctx context.Context, order PurchaseOrder, reason string) {
	s.publish(ctx, events.PurchaseFailed, order.UserID.String(), events.PurchaseFailedEvent{
		UserID:     order.UserID,
		TargetKind: string(order.Item.Kind()),
		TargetID:   order.Item.TargetID(),
		Reason:     reason,
		OccurredAt: s.now(),
	})
}

// publish is best effort: the purchase is already recorded when events go out.
func (s *PurchaseSagaService) publish(ctx context.Context, eventType, subject string, data interface{}) {
	if s.publisher == nil {
		return
	}
	ce, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.String("type", eventType), zap.Error(err))
		return
	}
	ce.Subject = subject
	if err := s.publisher.PublishEvent(ctx, events.TopicPricingEvents, ce); err != nil {
		s.logger.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
