package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/domain/access"
)

// AccessService exposes the access members obtained through purchases.
type AccessService struct {
	repo   access.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewAccessService creates a new AccessService.
func NewAccessService(repo access.Repository, logger *zap.Logger) *AccessService {
	return &AccessService{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// ListMyAccess returns the caller's enrollments, package subscriptions and orders.
// Revoked and expired grants are included with active=false.
func (s *AccessService) ListMyAccess(ctx context.Context, userID uuid.UUID) ([]*GrantDTO, error) {
	grants, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dtos := make([]*GrantDTO, len(grants))
	for i, g := range grants {
		dtos[i] = toGrantDTO(g, now)
	}
	return dtos, nil
}
