package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/pkg/auth"
	"github.com/chessclub-academy/service-pricing/pkg/middleware"
	"github.com/chessclub-academy/service-pricing/pkg/response"
)

// IdempotencyHeader makes a purchase request single-shot per member.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// PurchaseHandler handles HTTP requests for purchases.
type PurchaseHandler struct {
	service *application.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(service *application.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{service: service}
}

// RegisterRoutes registers all purchase routes on the given router group.
func (h *PurchaseHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	purchases := r.Group("/purchases")
	purchases.Use(middleware.AuthMiddleware(jwtManager))
	{
		purchases.POST("/courses/:id", h.PurchaseCourse)
		purchases.POST("/course-packages/:id", h.PurchaseCoursePackage)
		purchases.POST("/orders", h.PurchaseOrder)
		purchases.POST("/quote", h.Quote)
		purchases.GET("/me", h.ListMyPurchases)
		purchases.GET("/:id", h.GetPurchase)
	}
}

type itemPurchaseFunc func(ctx context.Context, userID, itemID uuid.UUID, idemKey string, req application.PurchaseRequest) (*application.PurchaseDTO, error)

// PurchaseCourse handles POST /api/v1/purchases/courses/:id
func (h *PurchaseHandler) PurchaseCourse(c *gin.Context) {
	h.purchaseItem(c, "course", h.service.PurchaseCourse)
}

// PurchaseCoursePackage handles POST /api/v1/purchases/course-packages/:id
func (h *PurchaseHandler) PurchaseCoursePackage(c *gin.Context) {
	h.purchaseItem(c, "course package", h.service.PurchaseCoursePackage)
}

func (h *PurchaseHandler) purchaseItem(c *gin.Context, what string, buy itemPurchaseFunc) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "id", what)
	if !ok {
		return
	}
	idemKey, ok := idempotencyKey(c)
	if !ok {
		return
	}

	// The body is optional: no body means no coupon.
	var req application.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := buy(c.Request.Context(), userID, itemID, idemKey, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// PurchaseOrder handles POST /api/v1/purchases/orders
func (h *PurchaseHandler) PurchaseOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	idemKey, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req application.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.PurchaseOrder(c.Request.Context(), userID, idemKey, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// Quote handles POST /api/v1/purchases/quote
func (h *PurchaseHandler) Quote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req application.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Quote(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListMyPurchases handles GET /api/v1/purchases/me
func (h *PurchaseHandler) ListMyPurchases(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	payments, total, err := h.service.ListMyPurchases(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, payments, total, page, limit)
}

// GetPurchase handles GET /api/v1/purchases/:id
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(c, "id", "purchase")
	if !ok {
		return
	}

	dto, err := h.service.GetPurchase(c.Request.Context(), userID, middleware.IsAdmin(c), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(IdempotencyHeader)
	if len(key) > maxIdempotencyKeyLength {
		response.BadRequest(c, IdempotencyHeader+" is too long")
		return "", false
	}
	return key, true
}
