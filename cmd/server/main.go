package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/adapter"
	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/config"
	pricingEvents "github.com/chessclub-academy/service-pricing/internal/events"
	"github.com/chessclub-academy/service-pricing/internal/handler"
	"github.com/chessclub-academy/service-pricing/internal/idempotency"
	"github.com/chessclub-academy/service-pricing/internal/metrics"
	"github.com/chessclub-academy/service-pricing/internal/repository"
	"github.com/chessclub-academy/service-pricing/internal/saga"
	"github.com/chessclub-academy/service-pricing/migrations"
	"github.com/chessclub-academy/service-pricing/pkg/auth"
	"github.com/chessclub-academy/service-pricing/pkg/database"
	"github.com/chessclub-academy/service-pricing/pkg/health"
	"github.com/chessclub-academy/service-pricing/pkg/kafka"
	"github.com/chessclub-academy/service-pricing/pkg/logger"
	"github.com/chessclub-academy/service-pricing/pkg/middleware"
)

const serviceName = "service-pricing"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("db_type", cfg.DBConfig.Type),
		zap.String("currency", cfg.PricingConfig.Currency),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.DBConfig.Type == database.Postgres && cfg.AppEnv != "development" {
		sqlDB, err := db.DB()
		if err != nil {
			zapLogger.Fatal("failed to access sql handle", zap.Error(err))
		}
		if err := database.RunMigrations(sqlDB, migrations.FS, zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	} else {
		if err := db.AutoMigrate(repository.Models()...); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (auto-migrate)")
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)

	// Initialize Redis-backed idempotency store when configured
	var idem application.IdempotencyStore
	var idemStore *idempotency.Store
	if cfg.RedisConfig.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer redisClient.Close()
		idemStore = idempotency.NewStore(redisClient, cfg.PricingConfig.IdempotencyTTL)
		idem = idemStore
	} else {
		zapLogger.Warn("REDIS_ADDR not set, Idempotency-Key headers are ignored")
	}

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()

	// Initialize payment gateway (mock for development)
	gateway := adapter.NewMockGateway(zapLogger)

	// Initialize repositories
	couponRepo := repository.NewGormCouponRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	grantRepo := repository.NewGormGrantRepository(db)
	catalogRepo := repository.NewGormCatalogRepository(db)
	uow := repository.NewGormUnitOfWork(db)

	// Initialize metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize saga service
	sagaService := saga.NewPurchaseSagaService(uow, paymentRepo, gateway, kafkaProducer, cfg.PricingConfig.Currency, zapLogger)

	// Initialize application services
	couponService := application.NewCouponService(couponRepo, m, cfg.PricingConfig.CodeGenerationAttempts, zapLogger)
	purchaseService := application.NewPurchaseService(catalogRepo, couponRepo, paymentRepo, grantRepo, sagaService, idem, m, zapLogger)
	paymentService := application.NewPaymentService(paymentRepo, sagaService, m, zapLogger)
	catalogService := application.NewCatalogService(catalogRepo, zapLogger)
	accessService := application.NewAccessService(grantRepo, zapLogger)

	// Initialize Kafka consumer for catalog events
	consumerGroupID := cfg.KafkaConfig.GroupPrefix + "pricing-service"
	catalogConsumer := pricingEvents.NewCatalogEventConsumer(
		cfg.KafkaConfig.Brokers,
		consumerGroupID,
		catalogService,
		m,
		zapLogger,
	)
	defer catalogConsumer.Close()

	// Start Kafka consumer in a goroutine
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		zapLogger.Info("starting catalog event consumer")
		if err := catalogConsumer.Start(consumerCtx); err != nil {
			if consumerCtx.Err() == nil {
				zapLogger.Error("catalog event consumer failed", zap.Error(err))
			}
		}
	}()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(m.GinMiddleware())

	// Register health check and metrics routes
	healthHandler := health.NewHandler(db, serviceName)
	if idemStore != nil {
		healthHandler.AddChecker("redis", idemStore.Ping)
	}
	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Register API routes
	apiV1 := router.Group("/api/v1")
	handler.NewCouponHandler(couponService).RegisterRoutes(apiV1, jwtManager)
	handler.NewPurchaseHandler(purchaseService).RegisterRoutes(apiV1, jwtManager)
	handler.NewCatalogHandler(catalogService, accessService).RegisterRoutes(apiV1, jwtManager)
	handler.NewAdminHandler(couponService, paymentService, catalogService).RegisterRoutes(apiV1, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + serviceName + "...")

	// Cancel Kafka consumer
	consumerCancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info(serviceName + " stopped")
}
