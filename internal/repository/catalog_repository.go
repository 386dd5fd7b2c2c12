package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

// PurchasableModel is the GORM model for the purchasables table, the local copy
// of the academy price list fed by catalog events.
type PurchasableModel struct {
	Kind         string          `gorm:"type:varchar(20);primaryKey"`
	ID           uuid.UUID       `gorm:"type:char(36);primaryKey"`
	Title        string          `gorm:"type:varchar(255);not null"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DurationDays *int
	Active       bool      `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (PurchasableModel) TableName() string { return "purchasables" }

// GormCatalogRepository implements catalog.Repository using GORM.
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository.
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindByID returns a course or course package by ID.
func (r *GormCatalogRepository) FindByID(ctx context.Context, kind catalog.Kind, id uuid.UUID) (*catalog.Purchasable, error) {
	var model PurchasableModel
	if err := r.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError(string(kind), id.String())
		}
		return nil, domain.NewPersistenceError("failed to load catalog entry", err)
	}
	return catalog.Reconstruct(catalog.Kind(model.Kind), model.ID, model.Title, model.Price,
		model.DurationDays, model.Active, model.UpdatedAt.UTC()), nil
}

// Upsert inserts or replaces a catalog entry.
func (r *GormCatalogRepository) Upsert(ctx context.Context, p *catalog.Purchasable) error {
	model := PurchasableModel{
		Kind:         string(p.Kind()),
		ID:           p.ID(),
		Title:        p.Title(),
		Price:        p.Price(),
		DurationDays: p.DurationDays(),
		Active:       p.Active(),
		UpdatedAt:    p.UpdatedAt(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "price", "duration_days", "active", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.NewPersistenceError("failed to upsert catalog entry", err)
	}
	return nil
}
