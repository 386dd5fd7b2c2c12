//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chessclub-academy/service-pricing/internal/adapter"
	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	pricingEvents "github.com/chessclub-academy/service-pricing/internal/events"
	"github.com/chessclub-academy/service-pricing/internal/metrics"
	"github.com/chessclub-academy/service-pricing/internal/repository"
	"github.com/chessclub-academy/service-pricing/internal/saga"
	"github.com/chessclub-academy/service-pricing/migrations"
	"github.com/chessclub-academy/service-pricing/pkg/database"
	"github.com/chessclub-academy/service-pricing/pkg/events"
	"github.com/chessclub-academy/service-pricing/pkg/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// pricingStack holds wired-up pricing service components.
type pricingStack struct {
	Coupons         *application.CouponService
	Purchases       *application.PurchaseService
	Payments        *application.PaymentService
	Consumer        *pricingEvents.CatalogEventConsumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies the
// embedded migrations and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_pricing",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_pricing sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(sqlDB, migrations.FS, zap.NewNop()))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicCatalogEvents, events.TopicPricingEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupPricingStack wires up the full pricing service stack.
func setupPricingStack(t *testing.T, db *gorm.DB, brokers []string) *pricingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	m := metrics.New(prometheus.NewRegistry())

	couponRepo := repository.NewGormCouponRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	grantRepo := repository.NewGormGrantRepository(db)
	catalogRepo := repository.NewGormCatalogRepository(db)
	producer := kafka.NewProducer(brokers, logger)

	sagaSvc := saga.NewPurchaseSagaService(repository.NewGormUnitOfWork(db), paymentRepo,
		adapter.NewMockGateway(logger), producer, "USD", logger)
	catalogSvc := application.NewCatalogService(catalogRepo, logger)

	groupID := fmt.Sprintf("test-pricing-%s", uuid.New().String()[:8])

	return &pricingStack{
		Coupons:         application.NewCouponService(couponRepo, m, application.DefaultCodeAttempts, logger),
		Purchases:       application.NewPurchaseService(catalogRepo, couponRepo, paymentRepo, grantRepo, sagaSvc, nil, m, logger),
		Payments:        application.NewPaymentService(paymentRepo, sagaSvc, m, logger),
		Consumer:        pricingEvents.NewCatalogEventConsumer(brokers, groupID, catalogSvc, m, logger),
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedCourse inserts an active course into the local price list.
func seedCourse(t *testing.T, db *gorm.DB, price int64) uuid.UUID {
	t.Helper()
	item, err := catalog.NewPurchasable(catalog.KindCourse, uuid.New(), "Endgame fundamentals", decimal.NewFromInt(price), nil, true)
	require.NoError(t, err)
	require.NoError(t, repository.NewGormCatalogRepository(db).Upsert(context.Background(), item))
	return *item.TargetID()
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForPurchasable polls the purchasables table until the row matches.
func waitForPurchasable(t *testing.T, db *gorm.DB, id uuid.UUID, match func(repository.PurchasableModel) bool, timeout time.Duration) repository.PurchasableModel {
	t.Helper()
	var result repository.PurchasableModel
	require.Eventually(t, func() bool {
		var model repository.PurchasableModel
		if err := db.Where("id = ?", id).First(&model).Error; err != nil {
			return false
		}
		if match(model) {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "purchasable %s did not reach the expected state", id)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
