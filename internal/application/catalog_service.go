package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
	"github.com/chessclub-academy/service-pricing/pkg/events"
)

// UpsertCatalogItemRequest sets a price list entry by hand.
type UpsertCatalogItemRequest struct {
	Title        string          `json:"title" binding:"required,max=255"`
	Price        decimal.Decimal `json:"price"`
	DurationDays *int            `json:"duration_days"`
	Active       *bool           `json:"active"`
}

// CatalogService keeps the local price list of courses and course packages.
type CatalogService struct {
	repo   catalog.Repository
	logger *zap.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo catalog.Repository, logger *zap.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

// GetItem returns one price list entry.
func (s *CatalogService) GetItem(ctx context.Context, kind catalog.Kind, id uuid.UUID) (*CatalogItemDTO, error) {
	p, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return toCatalogItemDTO(p), nil
}

// UpsertItem creates or replaces a price list entry (admin only).
func (s *CatalogService) UpsertItem(ctx context.Context, kind catalog.Kind, id uuid.UUID, req UpsertCatalogItemRequest) (*CatalogItemDTO, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p, err := catalog.NewPurchasable(kind, id, req.Title, req.Price, req.DurationDays, active)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("catalog entry saved",
		zap.String("kind", string(kind)),
		zap.String("id", id.String()),
		zap.String("price", p.Price().StringFixed(2)),
	)
	return toCatalogItemDTO(p), nil
}

// HandleItemUpserted applies a course or package upsert from the catalog service.
func (s *CatalogService) HandleItemUpserted(ctx context.Context, kind catalog.Kind, event events.CatalogItemEvent) error {
	p, err := catalog.NewPurchasable(kind, event.ID, event.Title, event.Price, event.DurationDays, event.Active)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return err
	}

	s.logger.Info("catalog entry synced",
		zap.String("kind", string(kind)),
		zap.String("id", event.ID.String()),
		zap.Bool("active", event.Active),
	)
	return nil
}

// HandleItemRemoved withdraws an entry from sale. Past payments keep referencing it.
func (s *CatalogService) HandleItemRemoved(ctx context.Context, event events.CatalogItemRemovedEvent) error {
	kind, err := catalog.ParseKind(event.Kind)
	if err != nil {
		return err
	}

	p, err := s.repo.FindByID(ctx, kind, event.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("removed catalog entry is unknown, skipping",
				zap.String("kind", string(kind)),
				zap.String("id", event.ID.String()),
			)
			return nil
		}
		return err
	}

	p.Deactivate()
	if err := s.repo.Upsert(ctx, p); err != nil {
		return err
	}

	s.logger.Info("catalog entry withdrawn", zap.String("kind", string(kind)), zap.String("id", event.ID.String()))
	return nil
}
