package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	paymentDomain "github.com/chessclub-academy/service-pricing/internal/domain/payment"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// PaymentModel is the GORM persistence model for the payments table.
type PaymentModel struct {
	ID             uuid.UUID       `gorm:"type:char(36);primaryKey"`
	UserID         uuid.UUID       `gorm:"type:char(36);not null;index"`
	TargetKind     string          `gorm:"type:varchar(20);not null"`
	TargetID       *uuid.UUID      `gorm:"type:char(36)"`
	Reference      string          `gorm:"type:varchar(255)"`
	OriginalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	CouponID       *uuid.UUID      `gorm:"type:char(36);index"`
	CouponCode     string          `gorm:"type:varchar(50)"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	TransactionID  string          `gorm:"type:varchar(255);not null"`
	PaymentDate    time.Time       `gorm:"not null"`
	RefundedAt     *time.Time
	RefundReason   string    `gorm:"type:text"`
	Version        int64     `gorm:"not null;default:1"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentRepositoryImpl is the GORM-based implementation of PaymentRepository.
type PaymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new GORM-based payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PaymentRepositoryImpl) WithTx(tx *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: tx}
}

// FindByID retrieves a payment by its unique ID.
func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment", id.String())
		}
		return nil, domain.NewPersistenceError("failed to load payment", err)
	}
	return toPaymentDomain(&model), nil
}

// Save persists a new payment aggregate.
func (r *PaymentRepositoryImpl) Save(ctx context.Context, payment *paymentDomain.Payment) error {
	model := toPaymentModel(payment)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domain.NewPersistenceError("failed to save payment", err)
	}
	return nil
}

// Update persists changes to an existing payment with optimistic locking.
func (r *PaymentRepositoryImpl) Update(ctx context.Context, payment *paymentDomain.Payment) error {
	model := toPaymentModel(payment)
	previousVersion := payment.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select("status", "refunded_at", "refund_reason", "version", "updated_at").
		Updates(model)

	if result.Error != nil {
		return domain.NewPersistenceError("failed to update payment", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("payment was modified by another transaction")
	}

	return nil
}

// ListByUser retrieves a member's payments, newest first.
func (r *PaymentRepositoryImpl) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&PaymentModel{}).Where("user_id = ?", userID), page, limit)
}

// ListAll retrieves all payments with pagination (admin).
func (r *PaymentRepositoryImpl) ListAll(ctx context.Context, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&PaymentModel{}), page, limit)
}

func (r *PaymentRepositoryImpl) list(q *gorm.DB, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("failed to count payments", err)
	}

	var models []PaymentModel
	offset := (page - 1) * limit
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, domain.NewPersistenceError("failed to list payments", err)
	}

	payments := make([]*paymentDomain.Payment, len(models))
	for i := range models {
		payments[i] = toPaymentDomain(&models[i])
	}
	return payments, total, nil
}

// GetStats returns payment totals grouped by status (admin).
func (r *PaymentRepositoryImpl) GetStats(ctx context.Context) (map[paymentDomain.Status]paymentDomain.StatusTotals, error) {
	type statusRow struct {
		Status   string
		Count    int64
		Revenue  decimal.Decimal
		Discount decimal.Decimal
	}
	var rows []statusRow
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Select("status, count(*) AS count, COALESCE(SUM(final_amount), 0) AS revenue, COALESCE(SUM(discount_amount), 0) AS discount").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, domain.NewPersistenceError("failed to aggregate payments", err)
	}

	stats := make(map[paymentDomain.Status]paymentDomain.StatusTotals, len(rows))
	for _, row := range rows {
		stats[paymentDomain.Status(row.Status)] = paymentDomain.StatusTotals{
			Count:    row.Count,
			Revenue:  row.Revenue,
			Discount: row.Discount,
		}
	}
	return stats, nil
}

// toPaymentDomain maps a PaymentModel to the domain Payment aggregate.
func toPaymentDomain(model *PaymentModel) *paymentDomain.Payment {
	return paymentDomain.Reconstitute(
		model.ID,
		model.UserID,
		catalog.Kind(model.TargetKind),
		model.TargetID,
		model.Reference,
		model.OriginalAmount,
		model.DiscountAmount,
		model.FinalAmount,
		model.Currency,
		model.CouponID,
		model.CouponCode,
		paymentDomain.Status(model.Status),
		model.TransactionID,
		model.PaymentDate.UTC(),
		utcPtr(model.RefundedAt),
		model.RefundReason,
		model.Version,
		model.CreatedAt.UTC(),
		model.UpdatedAt.UTC(),
	)
}

// toPaymentModel maps a domain Payment aggregate to a PaymentModel for persistence.
func toPaymentModel(p *paymentDomain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:             p.ID(),
		UserID:         p.UserID(),
		TargetKind:     string(p.TargetKind()),
		TargetID:       p.TargetID(),
		Reference:      p.Reference(),
		OriginalAmount: p.OriginalAmount(),
		DiscountAmount: p.DiscountAmount(),
		FinalAmount:    p.FinalAmount(),
		Currency:       p.Currency(),
		CouponID:       p.CouponID(),
		CouponCode:     p.CouponCode(),
		Status:         string(p.Status()),
		TransactionID:  p.TransactionID(),
		PaymentDate:    p.PaymentDate(),
		RefundedAt:     p.RefundedAt(),
		RefundReason:   p.RefundReason(),
		Version:        p.Version(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
	}
}
