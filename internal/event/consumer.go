package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/receipt"
	pkgkafka "github.com/permalink-studio/pos/pkg/kafka"
)

// ReceiptService sends a committed sale's receipt.
type ReceiptService interface {
	SendReceipt(ctx context.Context, tenantID, saleID string, contact domain.Contact) (string, error)
}

// Consumer handles events consumed by the POS service.
type Consumer struct {
	receipts ReceiptService
	logger   *slog.Logger
}

// NewConsumer creates a consumer.
func NewConsumer(receipts ReceiptService, logger *slog.Logger) *Consumer {
	return &Consumer{receipts: receipts, logger: logger}
}

// HandleSaleCompleted sends the receipt for a sale.completed event. Sales
// without contact info are skipped; that is not a failure.
func (c *Consumer) HandleSaleCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var data SaleCompletedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.Contact.IsEmpty() {
		c.logger.DebugContext(ctx, "sale has no receipt contact", slog.String("sale_id", data.SaleID))
		return nil
	}

	channel, err := c.receipts.SendReceipt(ctx, event.TenantID, data.SaleID, data.Contact)
	if errors.Is(err, receipt.ErrNoContact) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("send receipt for sale %s: %w", data.SaleID, err)
	}

	c.logger.InfoContext(ctx, "receipt delivered from event",
		slog.String("sale_id", data.SaleID),
		slog.String("channel", channel),
	)
	return nil
}
