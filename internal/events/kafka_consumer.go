package events

import (
	"context"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/chessclub-academy/service-pricing/internal/application"
	"github.com/chessclub-academy/service-pricing/internal/domain/catalog"
	"github.com/chessclub-academy/service-pricing/internal/metrics"
	"github.com/chessclub-academy/service-pricing/pkg/events"
	"github.com/chessclub-academy/service-pricing/pkg/kafka"
)

// CatalogService is the part of the catalog service the consumer drives.
type CatalogService interface {
	HandleItemUpserted(ctx context.Context, kind catalog.Kind, event events.CatalogItemEvent) error
	HandleItemRemoved(ctx context.Context, event events.CatalogItemRemovedEvent) error
}

var _ CatalogService = (*application.CatalogService)(nil)

// CatalogEventConsumer listens to catalog events and keeps the local price list in sync.
type CatalogEventConsumer struct {
	consumer *kafka.Consumer
	service  CatalogService
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewCatalogEventConsumer creates a new consumer for catalog events.
func NewCatalogEventConsumer(
	brokers []string,
	groupID string,
	service CatalogService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CatalogEventConsumer {
	return &CatalogEventConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, events.TopicCatalogEvents, logger),
		service:  service,
		metrics:  m,
		logger:   logger,
	}
}

// Start begins consuming catalog events. It blocks until the context is cancelled.
func (c *CatalogEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage routes incoming Kafka messages to the appropriate handler.
func (c *CatalogEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	return c.HandleEvent(ctx, msg.Value)
}

// HandleEvent decodes one CloudEvent and applies it.
func (c *CatalogEventConsumer) HandleEvent(ctx context.Context, value []byte) error {
	cloudEvent, err := kafka.ParseCloudEvent(value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from catalog topic",
			zap.Error(err),
			zap.String("raw", string(value)),
		)
		c.metrics.RecordCatalogEvent("unknown", "invalid")
		return err
	}

	c.logger.Info("received catalog event",
		zap.String("type", cloudEvent.Type),
		zap.String("id", cloudEvent.ID),
	)

	switch {
	case strings.EqualFold(cloudEvent.Type, events.CatalogCourseUpserted):
		err = c.handleUpserted(ctx, catalog.KindCourse, cloudEvent)

	case strings.EqualFold(cloudEvent.Type, events.CatalogPackageUpserted):
		err = c.handleUpserted(ctx, catalog.KindCoursePackage, cloudEvent)

	case strings.EqualFold(cloudEvent.Type, events.CatalogItemRemoved):
		err = c.handleRemoved(ctx, cloudEvent)

	default:
		c.logger.Debug("ignoring unhandled catalog event type",
			zap.String("type", cloudEvent.Type),
		)
		c.metrics.RecordCatalogEvent(cloudEvent.Type, "ignored")
		return nil
	}

	status := "applied"
	if err != nil {
		status = "failed"
	}
	c.metrics.RecordCatalogEvent(cloudEvent.Type, status)
	return err
}

// handleUpserted processes a course or course package upsert.
func (c *CatalogEventConsumer) handleUpserted(ctx context.Context, kind catalog.Kind, ce kafka.CloudEvent) error {
	var event events.CatalogItemEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse CatalogItemEvent data", zap.Error(err))
		return err
	}

	return c.service.HandleItemUpserted(ctx, kind, event)
}

// handleRemoved processes a CatalogItemRemovedEvent.
func (c *CatalogEventConsumer) handleRemoved(ctx context.Context, ce kafka.CloudEvent) error {
	var event events.CatalogItemRemovedEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse CatalogItemRemovedEvent data", zap.Error(err))
		return err
	}

	return c.service.HandleItemRemoved(ctx, event)
}

// Close closes the underlying Kafka consumer.
func (c *CatalogEventConsumer) Close() error {
	return c.consumer.Close()
}
