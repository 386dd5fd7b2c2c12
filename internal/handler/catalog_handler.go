package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/pkg/auth"
	"github.com/chessclub-academy/service-pricing/pkg/middleware"
	"github.com/chessclub-academy/service-pricing/pkg/response"
)

// CatalogHandler serves the price list and the caller's access grants.
type CatalogHandler struct {
	catalogService *application.CatalogService
	accessService  *application.AccessService
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalogService *application.CatalogService, accessService *application.AccessService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService, accessService: accessService}
}

// RegisterRoutes registers catalog and access routes.
func (h *CatalogHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	r.GET("/catalog/:kind/:id", authMW, h.GetItem)
	r.GET("/access/me", authMW, h.MyAccess)
}

// GetItem handles GET /api/v1/catalog/:kind/:id
func (h *CatalogHandler) GetItem(c *gin.Context) {
	kind, err := catalog.ParseKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	id, ok := uuidParam(c, "id", "catalog item")
	if !ok {
		return
	}

	dto, err := h.catalogService.GetItem(c.Request.Context(), kind, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// MyAccess handles GET /api/v1/access/me
func (h *CatalogHandler) MyAccess(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	grants, err := h.accessService.ListMyAccess(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, grants)
}
