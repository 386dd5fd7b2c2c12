package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/domain/coupon"
	"github.com/chessclub-academy/service-pricing/internal/metrics"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// DefaultCodeAttempts bounds random code generation when no limit is configured.
const DefaultCodeAttempts = 10

// CouponSettings are the admin-editable coupon fields shared by single and bulk creation.
type CouponSettings struct {
	DiscountType string           `json:"discount_type" binding:"required"`
	Value        decimal.Decimal  `json:"value"`
	MinPurchase  *decimal.Decimal `json:"min_purchase"`
	MaxDiscount  *decimal.Decimal `json:"max_discount"`
	UsageLimit   *int             `json:"usage_limit"`
	PerUserLimit *int             `json:"per_user_limit"`
	ValidFrom    *time.Time       `json:"valid_from"`
	ValidUntil   *time.Time       `json:"valid_until"`
	AppliesTo    string           `json:"applies_to"`
	EntityID     *uuid.UUID       `json:"entity_id"`
	IsActive     *bool            `json:"is_active"`
	Description  string           `json:"description" binding:"max=1000"`
}

// CouponRequest creates or replaces a coupon.
type CouponRequest struct {
	Code string `json:"code" binding:"required,max=50"`
	CouponSettings
}

// BulkCouponRequest generates count coupons with random codes.
type BulkCouponRequest struct {
	Count  int    `json:"count" binding:"required,min=1,max=500"`
	Prefix string `json:"prefix" binding:"max=20"`
	CouponSettings
}

// ValidateCouponRequest is a dry-run evaluation of a coupon.
type ValidateCouponRequest struct {
	Code       string          `json:"code" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	TargetKind string          `json:"target_kind"`
	TargetID   *uuid.UUID      `json:"target_id"`
}

// ValidationDTO is the result of a successful dry-run evaluation.
type ValidationDTO struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	CouponID       *uuid.UUID      `json:"coupon_id"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// CouponService handles coupon administration and evaluation use cases.
type CouponService struct {
	repo         coupon.Repository
	metrics      *metrics.Metrics
	codeAttempts int
	now          func() time.Time
	logger       *zap.Logger
}

// NewCouponService creates a new CouponService.
func NewCouponService(repo coupon.Repository, m *metrics.Metrics, codeAttempts int, logger *zap.Logger) *CouponService {
	if codeAttempts <= 0 {
		codeAttempts = DefaultCodeAttempts
	}
	return &CouponService{
		repo:         repo,
		metrics:      m,
		codeAttempts: codeAttempts,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// WithClock overrides the time source.
func (s *CouponService) WithClock(now func() time.Time) *CouponService {
	s.now = now
	return s
}

func (r CouponSettings) params(code string) coupon.Params {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return coupon.Params{
		Code:         code,
		DiscountType: coupon.DiscountType(r.DiscountType),
		Value:        r.Value,
		MinPurchase:  toNull(r.MinPurchase),
		MaxDiscount:  toNull(r.MaxDiscount),
		UsageLimit:   r.UsageLimit,
		PerUserLimit: r.PerUserLimit,
		ValidFrom:    r.ValidFrom,
		ValidUntil:   r.ValidUntil,
		AppliesTo:    coupon.TargetKind(r.AppliesTo),
		EntityID:     r.EntityID,
		IsActive:     active,
		Description:  r.Description,
	}
}

// CreateCoupon creates a new coupon (admin only).
func (s *CouponService) CreateCoupon(ctx context.Context, createdBy uuid.UUID, req CouponRequest) (*CouponDTO, error) {
	c, err := coupon.NewCoupon(req.params(req.Code), createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save coupon: %w", err)
	}

	s.logger.Info("coupon created",
		zap.String("coupon_id", c.ID().String()),
		zap.String("code", c.Code()),
		zap.String("created_by", createdBy.String()),
	)
	return toCouponDTO(c), nil
}

// BulkCreateCoupons creates req.Count coupons sharing the same settings, each with a
// unique random code starting with req.Prefix.
func (s *CouponService) BulkCreateCoupons(ctx context.Context, createdBy uuid.UUID, req BulkCouponRequest) ([]*CouponDTO, error) {
	// Validate the shared settings once before generating anything.
	if _, err := coupon.NewCoupon(req.params(coupon.NormalizeCode(req.Prefix)+"X"), createdBy); err != nil {
		return nil, err
	}

	batch, err := s.saveBatchWithRandomCodes(ctx, createdBy, req)
	if err != nil {
		return nil, err
	}

	dtos := make([]*CouponDTO, len(batch))
	for i, c := range batch {
		dtos[i] = toCouponDTO(c)
	}

	s.logger.Info("coupons generated",
		zap.Int("count", len(dtos)),
		zap.String("prefix", coupon.NormalizeCode(req.Prefix)),
		zap.String("created_by", createdBy.String()),
	)
	return dtos, nil
}

// saveBatchWithRandomCodes writes the whole batch or nothing. A code taken between
// generation and insert discards the batch and draws a fresh one.
func (s *CouponService) saveBatchWithRandomCodes(ctx context.Context, createdBy uuid.UUID, req BulkCouponRequest) ([]*coupon.Coupon, error) {
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		batch := make([]*coupon.Coupon, 0, req.Count)
		seen := make(map[string]struct{}, req.Count)
		for len(batch) < req.Count {
			code, err := s.GenerateUniqueCode(ctx, req.Prefix)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			c, err := coupon.NewCoupon(req.params(code), createdBy)
			if err != nil {
				return nil, err
			}
			batch = append(batch, c)
		}

		err := s.repo.SaveAll(ctx, batch)
		if err == nil {
			return batch, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("failed to save coupons: %w", err)
		}
		s.logger.Warn("generated coupon code collided, regenerating batch", zap.Int("attempt", attempt+1))
	}
	return nil, domain.NewConflictError("could not find free coupon codes, try a longer prefix")
}

// GenerateUniqueCode draws random codes until one is unused.
func (s *CouponService) GenerateUniqueCode(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := coupon.GenerateCode(prefix)
		if err != nil {
			return "", domain.NewValidationError(err.Error())
		}
		taken, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.NewConflictError(fmt.Sprintf("no free coupon code after %d attempts", s.codeAttempts))
}

// ListCoupons returns a page of coupons (admin only).
func (s *CouponService) ListCoupons(ctx context.Context, page, limit int, active *bool) ([]*CouponDTO, int64, error) {
	coupons, total, err := s.repo.List(ctx, coupon.ListFilter{Active: active, Page: page, Limit: limit})
	if err != nil {
		return nil, 0, err
	}
	return toCouponDTOs(coupons), total, nil
}

// GetCoupon returns one coupon by ID.
func (s *CouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCouponDTO(c), nil
}

// UpdateCoupon replaces a coupon's settings. The usage counter is kept.
func (s *CouponService) UpdateCoupon(ctx context.Context, id uuid.UUID, req CouponRequest) (*CouponDTO, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Update(req.params(req.Code)); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("coupon updated", zap.String("coupon_id", id.String()), zap.String("code", c.Code()))
	return s.GetCoupon(ctx, id)
}

// SetActive flips the coupon kill-switch.
func (s *CouponService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*CouponDTO, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if active {
		c.Activate()
	} else {
		c.Deactivate()
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("coupon active flag changed", zap.String("coupon_id", id.String()), zap.Bool("active", active))
	return toCouponDTO(c), nil
}

// DeleteCoupon removes a coupon and its redemption history.
func (s *CouponService) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("coupon deleted", zap.String("coupon_id", id.String()))
	return nil
}

// ListRedemptions returns a coupon's redemption history.
func (s *CouponService) ListRedemptions(ctx context.Context, id uuid.UUID, page, limit int) ([]RedemptionDTO, int64, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, 0, err
	}
	reds, total, err := s.repo.ListRedemptions(ctx, id, page, limit)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]RedemptionDTO, len(reds))
	for i, r := range reds {
		dtos[i] = RedemptionDTO{
			ID:             r.ID,
			UserID:         r.UserID,
			PaymentID:      r.PaymentID,
			DiscountAmount: r.DiscountAmount,
			RedeemedAt:     r.RedeemedAt,
		}
	}
	return dtos, total, nil
}

// AvailableCoupons lists coupons that are active, inside their window and not exhausted.
func (s *CouponService) AvailableCoupons(ctx context.Context) ([]*CouponDTO, error) {
	coupons, err := s.repo.FindAvailable(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return toCouponDTOs(coupons), nil
}

// ValidateCoupon evaluates a coupon for the caller without recording anything.
// An unknown code fails with coupon.ErrCouponNotFound and an ineligible coupon with its
// rejection, exactly as a purchase would.
func (s *CouponService) ValidateCoupon(ctx context.Context, userID uuid.UUID, req ValidateCouponRequest) (*ValidationDTO, error) {
	if req.Amount.IsNegative() {
		return nil, domain.NewValidationError("amount must not be negative")
	}
	kind := coupon.TargetOrder
	if req.TargetKind != "" {
		k, err := coupon.ParseTargetKind(req.TargetKind)
		if err != nil {
			return nil, err
		}
		if k == coupon.TargetAll {
			return nil, domain.NewValidationError("target_kind must name a purchasable kind")
		}
		kind = k
	}

	base := req.Amount.Round(coupon.CurrencyPlaces)
	c, quote, err := evaluateCoupon(ctx, s.repo, s.now(), userID, nil, req.Code, base, coupon.Target{Kind: kind, ID: req.TargetID})
	if err != nil {
		if reason := rejectionReason(err); reason != "" {
			s.metrics.RecordValidation(reason)
		}
		return nil, err
	}

	s.metrics.RecordValidation("valid")
	id := c.ID()
	return &ValidationDTO{
		Valid:          true,
		Code:           c.Code(),
		CouponID:       &id,
		OriginalAmount: quote.Original,
		DiscountAmount: quote.Discount,
		FinalAmount:    quote.Final,
	}, nil
}

// evaluateCoupon looks up a coupon by id or code and runs eligibility and pricing
// against the stored state. It never writes.
func evaluateCoupon(
	ctx context.Context,
	repo coupon.Repository,
	now time.Time,
	userID uuid.UUID,
	couponID *uuid.UUID,
	code string,
	base decimal.Decimal,
	target coupon.Target,
) (*coupon.Coupon, coupon.Quote, error) {
	var (
		c   *coupon.Coupon
		err error
	)
	if couponID != nil {
		c, err = repo.FindByID(ctx, *couponID)
	} else {
		c, err = repo.FindByCode(ctx, code)
	}
	if err != nil {
		return nil, coupon.Quote{}, err
	}

	prior, err := repo.CountUserRedemptions(ctx, c.ID(), userID)
	if err != nil {
		return c, coupon.Quote{}, err
	}
	if err := coupon.CheckEligibility(c, coupon.EligibilityRequest{
		BasePrice:        base,
		PurchaserID:      userID,
		Target:           target,
		Now:              now,
		PriorRedemptions: prior,
	}); err != nil {
		return c, coupon.Quote{}, err
	}

	quote, err := coupon.CalculateDiscount(base, c)
	if err != nil {
		return c, coupon.Quote{}, err
	}
	return c, quote, nil
}

// rejectionReason returns the code of a rejection the member can act on, or "".
func rejectionReason(err error) string {
	if errors.Is(err, domain.ErrUnprocessable) || errors.Is(err, coupon.ErrCouponNotFound) {
		return coupon.Reason(err)
	}
	return ""
}
