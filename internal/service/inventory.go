package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/repository"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// InventoryService manages inventory items and manual stock movements.
type InventoryService struct {
	store  repository.Store
	events EventPublisher
	logger *slog.Logger
}

// NewInventoryService creates an inventory service.
func NewInventoryService(store repository.Store, events EventPublisher, logger *slog.Logger) *InventoryService {
	return &InventoryService{store: store, events: events, logger: logger}
}

// CreateItemInput describes a new inventory item. Quantity is the opening
// stock, recorded as a restock movement.
type CreateItemInput struct {
	Name              string          `json:"name" validate:"required,max=200"`
	Kind              domain.Kind     `json:"kind" validate:"required"`
	Material          string          `json:"material" validate:"max=100"`
	Quantity          decimal.Decimal `json:"quantity"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
}

// UpdateInventoryInput changes descriptive fields. Quantity is changed only
// through Adjust.
type UpdateInventoryInput struct {
	Name              *string          `json:"name" validate:"omitempty,max=200"`
	Material          *string          `json:"material" validate:"omitempty,max=100"`
	CostPerUnit       *decimal.Decimal `json:"cost_per_unit"`
	SellPrice         *decimal.Decimal `json:"sell_price"`
	LowStockThreshold *decimal.Decimal `json:"low_stock_threshold"`
	Active            *bool            `json:"active"`
}

// AdjustInput is a manual stock movement.
type AdjustInput struct {
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason" validate:"required,oneof=adjustment restock return"`
	Note   string          `json:"note" validate:"max=500"`
}

// LedgerReport compares on-hand quantity with the movement ledger.
type LedgerReport struct {
	InventoryItemID string          `json:"inventory_item_id"`
	OnHand          decimal.Decimal `json:"on_hand"`
	MovementSum     decimal.Decimal `json:"movement_sum"`
	Balanced        bool            `json:"balanced"`
}

func nonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return apperrors.InvalidInput(field + " must be non-negative")
	}
	return nil
}

// Create inserts an item at zero and seeds its opening stock through a
// restock movement in the same transaction.
func (s *InventoryService) Create(ctx context.Context, tenantID, actorID string, input CreateItemInput) (*domain.InventoryItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if !input.Kind.IsValid() {
		return nil, domain.ErrInvalidKind
	}
	for field, v := range map[string]decimal.Decimal{
		"quantity":            input.Quantity,
		"cost_per_unit":       input.CostPerUnit,
		"sell_price":          input.SellPrice,
		"low_stock_threshold": input.LowStockThreshold,
	} {
		if err := nonNegative(field, v); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	item := &domain.InventoryItem{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		Name:              name,
		Kind:              input.Kind,
		Material:          strings.TrimSpace(input.Material),
		Unit:              domain.UnitFor(input.Kind),
		Quantity:          decimal.Zero,
		CostPerUnit:       input.CostPerUnit,
		SellPrice:         input.SellPrice,
		LowStockThreshold: input.LowStockThreshold,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.Inventory().Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create inventory item: %w", err)
	}
	if input.Quantity.IsPositive() {
		qty, err := s.move(ctx, tx, item, input.Quantity, domain.MovementRestock, "opening stock", actorID, now)
		if err != nil {
			return nil, err
		}
		item.Quantity = qty
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "inventory item created",
		slog.String("item_id", item.ID),
		slog.String("kind", string(item.Kind)),
		slog.String("quantity", item.Quantity.String()),
	)
	if input.Quantity.IsPositive() {
		s.publishChange(ctx, item, input.Quantity, domain.MovementRestock)
	}
	return item, nil
}

func (s *InventoryService) move(ctx context.Context, tx repository.Tx, item *domain.InventoryItem, delta decimal.Decimal, reason, note, actorID string, at time.Time) (decimal.Decimal, error) {
	qty, err := tx.Inventory().ApplyDelta(ctx, item.TenantID, item.ID, delta, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply stock delta: %w", err)
	}
	if err := tx.Inventory().InsertMovement(ctx, &domain.InventoryMovement{
		ID:              uuid.New().String(),
		TenantID:        item.TenantID,
		InventoryItemID: item.ID,
		Delta:           delta,
		Reason:          reason,
		Note:            note,
		ActorID:         actorID,
		CreatedAt:       at,
	}); err != nil {
		return decimal.Zero, fmt.Errorf("insert movement: %w", err)
	}
	return qty, nil
}

// Get returns an item.
func (s *InventoryService) Get(ctx context.Context, tenantID, id string) (*domain.InventoryItem, error) {
	item, err := s.store.Inventory().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return item, nil
}

// List returns a page of items.
func (s *InventoryService) List(ctx context.Context, tenantID string, filter domain.InventoryFilter, page, perPage int) ([]domain.InventoryItem, int, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, 0, domain.ErrInvalidKind
	}
	items, total, err := s.store.Inventory().List(ctx, tenantID, filter, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list inventory: %w", err)
	}
	return items, total, nil
}

// Update changes descriptive fields.
func (s *InventoryService) Update(ctx context.Context, tenantID, id string, input UpdateInventoryInput) (*domain.InventoryItem, error) {
	item, err := s.store.Inventory().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("name cannot be blank")
		}
		item.Name = name
	}
	if input.Material != nil {
		item.Material = strings.TrimSpace(*input.Material)
	}
	if input.CostPerUnit != nil {
		if err := nonNegative("cost_per_unit", *input.CostPerUnit); err != nil {
			return nil, err
		}
		item.CostPerUnit = *input.CostPerUnit
	}
	if input.SellPrice != nil {
		if err := nonNegative("sell_price", *input.SellPrice); err != nil {
			return nil, err
		}
		item.SellPrice = *input.SellPrice
	}
	if input.LowStockThreshold != nil {
		if err := nonNegative("low_stock_threshold", *input.LowStockThreshold); err != nil {
			return nil, err
		}
		item.LowStockThreshold = *input.LowStockThreshold
	}
	if input.Active != nil {
		item.Active = *input.Active
	}
	item.UpdatedAt = time.Now().UTC()

	if err := s.store.Inventory().Update(ctx, item); err != nil {
		return nil, fmt.Errorf("update inventory item: %w", err)
	}
	return item, nil
}

// Adjust records a manual movement. Manual movements never drive stock
// below zero.
func (s *InventoryService) Adjust(ctx context.Context, tenantID, actorID, id string, input AdjustInput) (*domain.InventoryItem, error) {
	switch input.Reason {
	case domain.MovementAdjustment, domain.MovementRestock, domain.MovementReturn:
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("reason %q is not a manual movement", input.Reason))
	}
	if input.Delta.IsZero() {
		return nil, apperrors.InvalidInput("delta must be non-zero")
	}
	if input.Reason != domain.MovementAdjustment && input.Delta.IsNegative() {
		return nil, apperrors.InvalidInput(input.Reason + " delta must be positive")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := tx.Inventory().LockForUpdate(ctx, tenantID, []string{id})
	if err != nil {
		return nil, fmt.Errorf("lock inventory item: %w", err)
	}
	item, ok := locked[id]
	if !ok {
		return nil, apperrors.NotFound("inventory item", id)
	}

	qty, err := s.move(ctx, tx, item, input.Delta, input.Reason, strings.TrimSpace(input.Note), actorID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	item.Quantity = qty

	s.logger.InfoContext(ctx, "inventory adjusted",
		slog.String("item_id", id),
		slog.String("delta", input.Delta.String()),
		slog.String("reason", input.Reason),
		slog.String("quantity", qty.String()),
	)
	s.publishChange(ctx, item, input.Delta, input.Reason)
	return item, nil
}

// Movements returns an item's ledger, newest first.
func (s *InventoryService) Movements(ctx context.Context, tenantID, id string, page, perPage int) ([]domain.InventoryMovement, int, error) {
	if _, err := s.store.Inventory().GetByID(ctx, tenantID, id); err != nil {
		return nil, 0, fmt.Errorf("get inventory item: %w", err)
	}
	movements, total, err := s.store.Inventory().ListMovements(ctx, tenantID, id, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	return movements, total, nil
}

// LowStock returns active items at or below their threshold.
func (s *InventoryService) LowStock(ctx context.Context, tenantID string) ([]domain.InventoryItem, error) {
	items, err := s.store.Inventory().ListLowStock(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return items, nil
}

// VerifyLedger checks that an item's movements sum to its quantity.
func (s *InventoryService) VerifyLedger(ctx context.Context, tenantID, id string) (*LedgerReport, error) {
	item, err := s.store.Inventory().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	sum, err := s.store.Inventory().SumMovements(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("sum movements: %w", err)
	}
	report := &LedgerReport{
		InventoryItemID: id,
		OnHand:          item.Quantity,
		MovementSum:     sum,
		Balanced:        item.Quantity.Equal(sum),
	}
	if !report.Balanced {
		s.logger.WarnContext(ctx, "inventory ledger out of balance",
			slog.String("item_id", id),
			slog.String("on_hand", item.Quantity.String()),
			slog.String("movement_sum", sum.String()),
		)
	}
	return report, nil
}

func (s *InventoryService) publishChange(ctx context.Context, item *domain.InventoryItem, delta decimal.Decimal, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishInventoryUpdated(ctx, item, delta, reason, nil); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.updated event",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}
	if item.Active && item.IsLowStock() {
		if err := s.events.PublishInventoryLowStock(ctx, item); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.low_stock event",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
