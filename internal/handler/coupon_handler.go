package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/pkg/auth"
	"github.com/chessclub-academy/service-pricing/pkg/middleware"
	"github.com/chessclub-academy/service-pricing/pkg/response"
)

// CouponHandler serves member-facing coupon endpoints.
type CouponHandler struct {
	service *application.CouponService
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(service *application.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

// RegisterRoutes registers coupon routes.
func (h *CouponHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	coupons := r.Group("/coupons")
	coupons.Use(middleware.AuthMiddleware(jwtManager))
	{
		coupons.POST("/validate", h.ValidateCoupon)
		coupons.GET("/available", h.AvailableCoupons)
	}
}

// ValidateCoupon handles POST /api/v1/coupons/validate
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req application.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ValidateCoupon(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AvailableCoupons handles GET /api/v1/coupons/available
func (h *CouponHandler) AvailableCoupons(c *gin.Context) {
	coupons, err := h.service.AvailableCoupons(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, coupons)
}
