package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/adapter"
	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/internal/repository"
	"github.com/chessclub-academy/service-pricing/internal/saga"
	"github.com/chessclub-academy/service-pricing/pkg/auth"
	"github.com/chessclub-academy/service-pricing/pkg/config"
	"github.com/chessclub-academy/service-pricing/pkg/database"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	router      *gin.Engine
	catalog     *application.CatalogService
	adminToken  string
	memberID    uuid.UUID
	memberToken string
	otherToken  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(config.DatabaseConfig{Type: database.SQLite, Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(repository.Models()...))

	logger := zap.NewNop()
	coupons := repository.NewGormCouponRepository(db)
	payments := repository.NewPaymentRepository(db)
	grants := repository.NewGormGrantRepository(db)
	catalogRepo := repository.NewGormCatalogRepository(db)
	sagaSvc := saga.NewPurchaseSagaService(repository.NewGormUnitOfWork(db), payments, adapter.NewMockGateway(logger), nil, "USD", logger)

	couponSvc := application.NewCouponService(coupons, nil, 0, logger)
	purchaseSvc := application.NewPurchaseService(catalogRepo, coupons, payments, grants, sagaSvc, nil, nil, logger)
	paymentSvc := application.NewPaymentService(payments, sagaSvc, nil, logger)
	catalogSvc := application.NewCatalogService(catalogRepo, logger)
	accessSvc := application.NewAccessService(grants, logger)

	jwtManager := auth.NewJWTManager("test-secret", time.Hour, time.Hour)
	r := gin.New()
	v1 := r.Group("/api/v1")
	NewCouponHandler(couponSvc).RegisterRoutes(v1, jwtManager)
	NewPurchaseHandler(purchaseSvc).RegisterRoutes(v1, jwtManager)
	NewAdminHandler(couponSvc, paymentSvc, catalogSvc).RegisterRoutes(v1, jwtManager)
	NewCatalogHandler(catalogSvc, accessSvc).RegisterRoutes(v1, jwtManager)

	s := &testServer{router: r, catalog: catalogSvc, memberID: uuid.New()}
	s.adminToken, err = jwtManager.GenerateAccessToken(uuid.New(), "arbiter@club.test", auth.RoleAdmin)
	require.NoError(t, err)
	s.memberToken, err = jwtManager.GenerateAccessToken(s.memberID, "member@club.test", auth.RoleMember)
	require.NoError(t, err)
	s.otherToken, err = jwtManager.GenerateAccessToken(uuid.New(), "other@club.test", auth.RoleMember)
	require.NoError(t, err)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *testServer) course(t *testing.T, price string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.catalog.UpsertItem(context.Background(), catalog.KindCourse, id, application.UpsertCatalogItemRequest{
		Title: "Sicilian for club players", Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return id
}

func (s *testServer) coupon(t *testing.T, body gin.H) application.CouponDTO {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/admin/coupons", s.adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dto application.CouponDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	return dto
}

func TestAdminCouponRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	body := gin.H{"code": "GAMBIT", "discount_type": "fixed", "value": "5"}

	w, _ := s.do(t, http.MethodPost, "/api/v1/admin/coupons", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/coupons", s.memberToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/coupons", s.adminToken, body)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
}

func TestCreateCouponValidation(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/coupons", s.adminToken, gin.H{"code": "X", "discount_type": "bogo", "value": "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_coupon_type", env.Error.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/coupons", s.adminToken, gin.H{"discount_type": "fixed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.coupon(t, gin.H{"code": "TWICE", "discount_type": "fixed", "value": "5"})
	w, env = s.do(t, http.MethodPost, "/api/v1/admin/coupons", s.adminToken, gin.H{"code": "twice", "discount_type": "fixed", "value": "5"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", env.Error.Code)
}

func TestCouponLifecycle(t *testing.T) {
	s := newTestServer(t)
	dto := s.coupon(t, gin.H{"code": "ENDGAME", "discount_type": "percentage", "value": "10", "usage_limit": 5})
	base := "/api/v1/admin/coupons/" + dto.ID.String()

	w, env := s.do(t, http.MethodPut, base, s.adminToken, gin.H{"code": "ENDGAME", "discount_type": "percentage", "value": "15"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated application.CouponDTO
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.True(t, updated.Value.Equal(decimal.NewFromInt(15)))
	assert.Nil(t, updated.UsageLimit)

	w, env = s.do(t, http.MethodPost, base+"/deactivate", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.False(t, updated.IsActive)

	w, _ = s.do(t, http.MethodPost, base+"/activate", s.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/coupons?active=true", s.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/coupons?active=maybe", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, base+"/redemptions", s.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, base, s.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = s.do(t, http.MethodGet, base, s.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "coupon_not_found", env.Error.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/coupons/not-a-uuid", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkCreateCoupons(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/coupons/bulk", s.adminToken,
		gin.H{"count": 5, "prefix": "sim", "discount_type": "fixed", "value": "3"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var dtos []application.CouponDTO
	require.NoError(t, json.Unmarshal(env.Data, &dtos))
	assert.Len(t, dtos, 5)
	for _, d := range dtos {
		assert.True(t, strings.HasPrefix(d.Code, "SIM"))
	}

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/coupons/bulk", s.adminToken,
		gin.H{"count": 501, "discount_type": "fixed", "value": "3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateCoupon(t *testing.T) {
	s := newTestServer(t)
	s.coupon(t, gin.H{"code": "SAVE30", "discount_type": "percentage", "value": "30"})

	w, env := s.do(t, http.MethodPost, "/api/v1/coupons/validate", s.memberToken, gin.H{"code": "save30", "amount": "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res application.ValidationDTO
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Valid)
	assert.True(t, res.FinalAmount.Equal(decimal.NewFromInt(70)))

	w, env = s.do(t, http.MethodPost, "/api/v1/coupons/validate", s.memberToken, gin.H{"code": "missing", "amount": "100"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "coupon_not_found", env.Error.Code)

	s.coupon(t, gin.H{"code": "BIG", "discount_type": "fixed", "value": "10", "min_purchase": "500"})
	w, env = s.do(t, http.MethodPost, "/api/v1/coupons/validate", s.memberToken, gin.H{"code": "BIG", "amount": "100"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "below_minimum_purchase", env.Error.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/coupons/available", s.memberToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPurchaseCourse(t *testing.T) {
	s := newTestServer(t)
	courseID := s.course(t, "100")
	s.coupon(t, gin.H{"code": "SAVE30", "discount_type": "percentage", "value": "30"})

	w, env := s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+courseID.String(), s.memberToken, gin.H{"coupon_code": "SAVE30"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var dto application.PurchaseDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.True(t, dto.FinalPrice.Equal(decimal.NewFromInt(70)))
	assert.True(t, dto.CouponApplied)
	assert.Equal(t, s.memberID, dto.Payment.UserID)
	require.NotNil(t, dto.Grant)
	assert.Equal(t, "enrollment", dto.Grant.Kind)

	path := "/api/v1/purchases/" + dto.Payment.ID.String()
	w, _ = s.do(t, http.MethodGet, path, s.memberToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, path, s.otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(t, http.MethodGet, path, s.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/purchases/me", s.memberToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []application.PaymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	w, env = s.do(t, http.MethodGet, "/api/v1/access/me", s.memberToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var grants []application.GrantDTO
	require.NoError(t, json.Unmarshal(env.Data, &grants))
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Active)
}

func TestPurchaseWithoutBody(t *testing.T) {
	s := newTestServer(t)
	courseID := s.course(t, "45.50")

	w, env := s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+courseID.String(), s.memberToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var dto application.PurchaseDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.False(t, dto.CouponApplied)
	assert.True(t, dto.FinalPrice.Equal(decimal.RequireFromString("45.50")))
}

func TestPurchaseRejectionIsUnprocessable(t *testing.T) {
	s := newTestServer(t)
	courseID := s.course(t, "100")
	s.coupon(t, gin.H{"code": "BIG", "discount_type": "fixed", "value": "10", "min_purchase": "500"})

	w, env := s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+courseID.String(), s.memberToken, gin.H{"coupon_code": "BIG"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "below_minimum_purchase", env.Error.Code)
}

func TestPurchaseRouteErrors(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/v1/purchases/courses/nope", s.memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+uuid.NewString(), s.memberToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+uuid.NewString(), s.memberToken, nil,
		IdempotencyHeader, strings.Repeat("k", maxIdempotencyKeyLength+1))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/purchases/orders", s.memberToken, gin.H{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseOrderAndQuote(t *testing.T) {
	s := newTestServer(t)
	s.coupon(t, gin.H{"code": "FIVE", "discount_type": "fixed", "value": "5", "applies_to": "order"})

	w, env := s.do(t, http.MethodPost, "/api/v1/purchases/quote", s.memberToken,
		gin.H{"target_kind": "order", "amount": "20", "coupon_code": "FIVE"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var q application.QuoteDTO
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.True(t, q.FinalPrice.Equal(decimal.NewFromInt(15)))

	w, env = s.do(t, http.MethodPost, "/api/v1/purchases/orders", s.memberToken,
		gin.H{"amount": "20", "reference": "simul entry", "coupon_code": "FIVE"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dto application.PurchaseDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.True(t, dto.FinalPrice.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "order", dto.Payment.TargetKind)
}

func TestAdminPayments(t *testing.T) {
	s := newTestServer(t)
	courseID := s.course(t, "80")
	w, env := s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+courseID.String(), s.memberToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var dto application.PurchaseDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	refundPath := "/api/v1/admin/payments/" + dto.Payment.ID.String() + "/refund"

	w, _ = s.do(t, http.MethodPost, refundPath, s.memberToken, gin.H{"reason": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, refundPath, s.adminToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodPost, refundPath, s.adminToken, gin.H{"reason": "course cancelled"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refunded application.PaymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &refunded))
	assert.Equal(t, "refunded", refunded.Status)

	w, env = s.do(t, http.MethodPost, refundPath, s.adminToken, gin.H{"reason": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", env.Error.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/payments?page=1&limit=5", s.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/stats/payments", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats application.PaymentStatsDTO
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.TotalPayments)
	assert.Equal(t, int64(1), stats.ByStatus["refunded"].Count)
}

func TestAdminGetAndFailPayment(t *testing.T) {
	s := newTestServer(t)
	courseID := s.course(t, "60")
	w, env := s.do(t, http.MethodPost, "/api/v1/purchases/courses/"+courseID.String(), s.memberToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var dto application.PurchaseDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	paymentPath := "/api/v1/admin/payments/" + dto.Payment.ID.String()

	w, _ = s.do(t, http.MethodGet, paymentPath, s.memberToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, http.MethodGet, paymentPath, s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got application.PaymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, dto.Payment.ID, got.ID)
	assert.Equal(t, "completed", got.Status)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/payments/"+uuid.New().String(), s.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/payments/not-a-uuid", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, paymentPath+"/fail", s.adminToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodPost, paymentPath+"/fail", s.adminToken, gin.H{"reason": "chargeback"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var failed application.PaymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &failed))
	assert.Equal(t, "failed", failed.Status)

	w, env = s.do(t, http.MethodPost, paymentPath+"/fail", s.adminToken, gin.H{"reason": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", env.Error.Code)

	w, env = s.do(t, http.MethodPost, paymentPath+"/refund", s.adminToken, gin.H{"reason": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", env.Error.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/access/me", s.memberToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var grants []application.GrantDTO
	require.NoError(t, json.Unmarshal(env.Data, &grants))
	require.Len(t, grants, 1)
	assert.False(t, grants[0].Active)
	assert.Equal(t, "revoked", grants[0].Status)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	path := "/api/v1/admin/catalog/course-package/" + id.String()

	w, _ := s.do(t, http.MethodPut, path, s.memberToken, gin.H{"title": "Season", "price": "120"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPut, path, s.adminToken, gin.H{"title": "Season", "price": "120", "duration_days": 365})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(t, http.MethodGet, "/api/v1/catalog/course_package/"+id.String(), s.memberToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var item application.CatalogItemDTO
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "course_package", item.Kind)
	require.NotNil(t, item.DurationDays)
	assert.Equal(t, 365, *item.DurationDays)

	w, _ = s.do(t, http.MethodGet, "/api/v1/catalog/lesson/"+id.String(), s.memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
