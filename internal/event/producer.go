package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	pkgkafka "github.com/permalink-studio/pos/pkg/kafka"
	"github.com/permalink-studio/pos/pkg/logger"
)

// Topics published by the POS service.
var (
	TopicSaleCompleted     = pkgkafka.Topic("sale", "completed")
	TopicInventoryUpdated  = pkgkafka.Topic("inventory", "updated")
	TopicInventoryLowStock = pkgkafka.Topic("inventory", "low_stock")
)

// Aggregate types.
const (
	AggregateTypeSale      = "sale"
	AggregateTypeInventory = "inventory_item"
)

// SourcePOS identifies events from this service.
const SourcePOS = "pos-service"

// SaleCompletedData is the payload of sale.completed.
type SaleCompletedData struct {
	SaleID        string          `json:"sale_id"`
	ClientID      *string         `json:"client_id,omitempty"`
	EventID       *string         `json:"event_id,omitempty"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	ItemCount     int             `json:"item_count"`
	Contact       domain.Contact  `json:"contact"`
	ActorID       string          `json:"actor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InventoryUpdatedData is the payload of inventory.updated.
type InventoryUpdatedData struct {
	ItemID      string          `json:"item_id"`
	Name        string          `json:"name"`
	Kind        domain.Kind     `json:"kind"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	Delta       decimal.Decimal `json:"delta"`
	Reason      string          `json:"reason"`
	ReferenceID *string         `json:"reference_id,omitempty"`
}

// InventoryLowStockData is the payload of inventory.low_stock.
type InventoryLowStockData struct {
	ItemID            string          `json:"item_id"`
	Name              string          `json:"name"`
	Quantity          decimal.Decimal `json:"quantity"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
}

// Producer publishes POS domain events.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a producer over kafka.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType, tenantID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, tenantID, SourcePOS, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishSaleCompleted publishes sale.completed with the receipt contact.
func (p *Producer) PublishSaleCompleted(ctx context.Context, sale *domain.Sale, contact domain.Contact) error {
	return p.publish(ctx, TopicSaleCompleted, sale.ID, AggregateTypeSale, sale.TenantID, SaleCompletedData{
		SaleID:        sale.ID,
		ClientID:      sale.ClientID,
		EventID:       sale.EventID,
		Total:         sale.Total,
		PaymentMethod: sale.PaymentMethod,
		ItemCount:     len(sale.Items),
		Contact:       contact,
		ActorID:       sale.ActorID,
		CreatedAt:     sale.CreatedAt,
	})
}

// PublishInventoryUpdated publishes inventory.updated for a net change.
func (p *Producer) PublishInventoryUpdated(ctx context.Context, item *domain.InventoryItem, delta decimal.Decimal, reason string, referenceID *string) error {
	return p.publish(ctx, TopicInventoryUpdated, item.ID, AggregateTypeInventory, item.TenantID, InventoryUpdatedData{
		ItemID:      item.ID,
		Name:        item.Name,
		Kind:        item.Kind,
		Unit:        item.Unit,
		Quantity:    item.Quantity,
		Delta:       delta,
		Reason:      reason,
		ReferenceID: referenceID,
	})
}

// PublishInventoryLowStock publishes inventory.low_stock.
func (p *Producer) PublishInventoryLowStock(ctx context.Context, item *domain.InventoryItem) error {
	return p.publish(ctx, TopicInventoryLowStock, item.ID, AggregateTypeInventory, item.TenantID, InventoryLowStockData{
		ItemID:            item.ID,
		Name:              item.Name,
		Quantity:          item.Quantity,
		LowStockThreshold: item.LowStockThreshold,
	})
}
