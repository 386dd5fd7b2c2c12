package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/pkg/auth"
	"github.com/chessclub-academy/service-pricing/pkg/middleware"
	"github.com/chessclub-academy/service-pricing/pkg/response"
)

// AdminHandler handles admin HTTP requests for coupons, payments and the price list.
type AdminHandler struct {
	couponService  *application.CouponService
	paymentService *application.PaymentService
	catalogService *application.CatalogService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	couponService *application.CouponService,
	paymentService *application.PaymentService,
	catalogService *application.CatalogService,
) *AdminHandler {
	return &AdminHandler{
		couponService:  couponService,
		paymentService: paymentService,
		catalogService: catalogService,
	}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/admin")
	admin.Use(authMW, adminRole)
	{
		admin.POST("/coupons", h.CreateCoupon)
		admin.POST("/coupons/bulk", h.BulkCreateCoupons)
		admin.GET("/coupons", h.ListCoupons)
		admin.GET("/coupons/:id", h.GetCoupon)
		admin.PUT("/coupons/:id", h.UpdateCoupon)
		admin.DELETE("/coupons/:id", h.DeleteCoupon)
		admin.POST("/coupons/:id/activate", h.ActivateCoupon)
		admin.POST("/coupons/:id/deactivate", h.DeactivateCoupon)
		admin.GET("/coupons/:id/redemptions", h.ListRedemptions)

		admin.GET("/payments", h.ListPayments)
		admin.GET("/payments/:id", h.GetPayment)
		admin.POST("/payments/:id/refund", h.RefundPayment)
		admin.POST("/payments/:id/fail", h.MarkPaymentFailed)
		admin.GET("/stats/payments", h.PaymentStats)

		admin.PUT("/catalog/:kind/:id", h.UpsertCatalogItem)
	}
}

// CreateCoupon handles POST /api/v1/admin/coupons.
func (h *AdminHandler) CreateCoupon(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}

	var req application.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.couponService.CreateCoupon(c.Request.Context(), adminID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// BulkCreateCoupons handles POST /api/v1/admin/coupons/bulk.
func (h *AdminHandler) BulkCreateCoupons(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}

	var req application.BulkCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dtos, err := h.couponService.BulkCreateCoupons(c.Request.Context(), adminID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dtos)
}

// ListCoupons handles GET /api/v1/admin/coupons.
func (h *AdminHandler) ListCoupons(c *gin.Context) {
	page, limit := pagination(c)

	var active *bool
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "active must be true or false")
			return
		}
		active = &b
	}

	coupons, total, err := h.couponService.ListCoupons(c.Request.Context(), page, limit, active)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, coupons, total, page, limit)
}

// GetCoupon handles GET /api/v1/admin/coupons/:id.
func (h *AdminHandler) GetCoupon(c *gin.Context) {
	id, ok := uuidParam(c, "id", "coupon")
	if !ok {
		return
	}

	dto, err := h.couponService.GetCoupon(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// UpdateCoupon handles PUT /api/v1/admin/coupons/:id.
func (h *AdminHandler) UpdateCoupon(c *gin.Context) {
	id, ok := uuidParam(c, "id", "coupon")
	if !ok {
		return
	}

	var req application.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.couponService.UpdateCoupon(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// DeleteCoupon handles DELETE /api/v1/admin/coupons/:id.
func (h *AdminHandler) DeleteCoupon(c *gin.Context) {
	id, ok := uuidParam(c, "id", "coupon")
	if !ok {
		return
	}

	if err := h.couponService.DeleteCoupon(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ActivateCoupon handles POST /api/v1/admin/coupons/:id/activate.
func (h *AdminHandler) ActivateCoupon(c *gin.Context) {
	h.setActive(c, true)
}

// DeactivateCoupon handles POST /api/v1/admin/coupons/:id/deactivate.
func (h *AdminHandler) DeactivateCoupon(c *gin.Context) {
	h.setActive(c, false)
}

func (h *AdminHandler) setActive(c *gin.Context, active bool) {
	id, ok := uuidParam(c, "id", "coupon")
	if !ok {
		return
	}

	dto, err := h.couponService.SetActive(c.Request.Context(), id, active)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListRedemptions handles GET /api/v1/admin/coupons/:id/redemptions.
func (h *AdminHandler) ListRedemptions(c *gin.Context) {
	id, ok := uuidParam(c, "id", "coupon")
	if !ok {
		return
	}
	page, limit := pagination(c)

	reds, total, err := h.couponService.ListRedemptions(c.Request.Context(), id, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, reds, total, page, limit)
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	page, limit := pagination(c)

	payments, total, err := h.paymentService.ListAllPayments(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, payments, total, page, limit)
}

// PaymentStats handles GET /api/v1/admin/stats/payments.
func (h *AdminHandler) PaymentStats(c *gin.Context) {
	stats, err := h.paymentService.GetPaymentStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// GetPayment handles GET /api/v1/admin/payments/:id.
func (h *AdminHandler) GetPayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "id", "payment")
	if !ok {
		return
	}

	dto, err := h.paymentService.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// RefundPayment handles POST /api/v1/admin/payments/:id/refund.
func (h *AdminHandler) RefundPayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "id", "payment")
	if !ok {
		return
	}

	var req application.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.paymentService.RefundPayment(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// MarkPaymentFailed handles POST /api/v1/admin/payments/:id/fail.
func (h *AdminHandler) MarkPaymentFailed(c *gin.Context) {
	paymentID, ok := uuidParam(c, "id", "payment")
	if !ok {
		return
	}

	var req application.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.paymentService.MarkPaymentFailed(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// UpsertCatalogItem handles PUT /api/v1/admin/catalog/:kind/:id.
func (h *AdminHandler) UpsertCatalogItem(c *gin.Context) {
	kind, err := catalog.ParseKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	id, ok := uuidParam(c, "id", "catalog item")
	if !ok {
		return
	}

	var req application.UpsertCatalogItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.catalogService.UpsertItem(c.Request.Context(), kind, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}
