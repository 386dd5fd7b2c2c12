package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/domain/payment"
	"github.com/chessclub-academy/service-pricing/internal/metrics"
	"github.com/chessclub-academy/service-pricing/internal/saga"
)

// RefundRequest is the body of an admin refund.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// PaymentService is the application service for payment administration.
type PaymentService struct {
	repo    payment.Repository
	sagaSvc *saga.PurchaseSagaService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	repo payment.Repository,
	sagaSvc *saga.PurchaseSagaService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repo:    repo,
		sagaSvc: sagaSvc,
		metrics: m,
		logger:  logger,
	}
}

// GetPayment retrieves a payment by its ID.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentDTO, error) {
	p, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// RefundPayment refunds a completed payment and revokes the access it bought.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*PaymentDTO, error) {
	s.logger.Info("refunding payment",
		zap.String("payment_id", paymentID.String()),
		zap.String("reason", reason),
	)

	p, err := s.sagaSvc.RefundSaga(ctx, paymentID, reason)
	if err != nil {
		s.logger.Error("failed to refund payment", zap.Error(err))
		return nil, err
	}
	s.metrics.RecordRefund()

	dto := toPaymentDTO(p)
	return &dto, nil
}

// MarkPaymentFailed flags a completed payment as reversed by the gateway and revokes
// the access it bought.
func (s *PaymentService) MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*PaymentDTO, error) {
	p, err := s.sagaSvc.MarkFailed(ctx, paymentID, reason)
	if err != nil {
		s.logger.Error("failed to mark payment failed",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	s.logger.Info("payment marked failed",
		zap.String("payment_id", paymentID.String()),
		zap.String("reason", reason),
	)

	dto := toPaymentDTO(p)
	return &dto, nil
}

// --- Admin methods ---

// StatusStatsDTO aggregates payments sharing a status.
type StatusStatsDTO struct {
	Count    int64           `json:"count"`
	Revenue  decimal.Decimal `json:"revenue"`
	Discount decimal.Decimal `json:"discount"`
}

// PaymentStatsDTO holds payment statistics for the admin dashboard.
type PaymentStatsDTO struct {
	TotalRevenue  decimal.Decimal           `json:"total_revenue"`
	TotalDiscount decimal.Decimal           `json:"total_discount"`
	TotalPayments int64                     `json:"total_payments"`
	Currency      string                    `json:"currency"`
	ByStatus      map[string]StatusStatsDTO `json:"by_status"`
}

// ListAllPayments returns a paginated list of all payments (admin).
func (s *PaymentService) ListAllPayments(ctx context.Context, page, limit int) ([]PaymentDTO, int64, error) {
	payments, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return toPaymentDTOs(payments), total, nil
}

// GetPaymentStats returns aggregate payment statistics (admin). Revenue and discount
// totals count completed payments only.
func (s *PaymentService) GetPaymentStats(ctx context.Context) (*PaymentStatsDTO, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	dto := &PaymentStatsDTO{
		TotalRevenue:  decimal.Zero,
		TotalDiscount: decimal.Zero,
		Currency:      s.sagaSvc.Currency(),
		ByStatus:      make(map[string]StatusStatsDTO, len(stats)),
	}
	for status, totals := range stats {
		dto.TotalPayments += totals.Count
		dto.ByStatus[string(status)] = StatusStatsDTO{
			Count:    totals.Count,
			Revenue:  totals.Revenue,
			Discount: totals.Discount,
		}
	}
	if completed, ok := stats[payment.StatusCompleted]; ok {
		dto.TotalRevenue = completed.Revenue
		dto.TotalDiscount = completed.Discount
	}
	return dto, nil
}
