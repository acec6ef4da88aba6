package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
)

// Store is the persistence collaborator. Reads outside a transaction go
// through its repositories; writes that must commit together go through Tx.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Inventory() InventoryRepository
	Sales() SaleRepository
	Clients() ClientRepository
}

// Tx is a unit of work. Rollback after Commit is a no-op.
type Tx interface {
	Inventory() InventoryRepository
	Sales() SaleRepository
	Clients() ClientRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// InventoryRepository persists inventory items and their movement ledger.
// Every method is scoped to a tenant.
type InventoryRepository interface {
	// Create inserts an item. Quantity is expected to be zero; stock arrives
	// through ApplyDelta and a restock movement.
	Create(ctx context.Context, item *domain.InventoryItem) error

	GetByID(ctx context.Context, tenantID, id string) (*domain.InventoryItem, error)

	List(ctx context.Context, tenantID string, filter domain.InventoryFilter, page, perPage int) ([]domain.InventoryItem, int, error)

	// ListJumpRings returns active jump-ring stock ordered by cost, name and id.
	ListJumpRings(ctx context.Context, tenantID string) ([]domain.InventoryItem, error)

	// LockForUpdate row-locks the given items in id order until the
	// transaction ends and returns them keyed by id. Missing ids are absent.
	LockForUpdate(ctx context.Context, tenantID string, ids []string) (map[string]*domain.InventoryItem, error)

	// ApplyDelta adds delta to on-hand quantity in a single conditional
	// update and returns the new quantity. Unless allowNegative is set, an
	// update that would go below zero is refused with ErrInsufficientStock.
	ApplyDelta(ctx context.Context, tenantID, id string, delta decimal.Decimal, allowNegative bool) (decimal.Decimal, error)

	InsertMovement(ctx context.Context, m *domain.InventoryMovement) error

	// ListMovements returns an item's ledger, newest first.
	ListMovements(ctx context.Context, tenantID, itemID string, page, perPage int) ([]domain.InventoryMovement, int, error)

	SumMovements(ctx context.Context, tenantID, itemID string) (decimal.Decimal, error)

	// ListLowStock returns active items at or below their threshold.
	ListLowStock(ctx context.Context, tenantID string) ([]domain.InventoryItem, error)

	// Update writes descriptive fields. Quantity is never written here.
	Update(ctx context.Context, item *domain.InventoryItem) error
}

// SaleRepository persists sales and their line snapshots.
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	CreateItem(ctx context.Context, item *domain.SaleItem) error

	// GetByID returns a sale with its items.
	GetByID(ctx context.Context, tenantID, id string) (*domain.Sale, error)

	// List returns sale headers, newest first.
	List(ctx context.Context, tenantID string, filter domain.SaleFilter, page, perPage int) ([]domain.Sale, int, error)

	MarkReceiptSent(ctx context.Context, tenantID, id string, at time.Time) error
}

// ClientRepository persists clients. Finders return ErrNotFound on a miss.
type ClientRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Client, error)
	FindByEmail(ctx context.Context, tenantID, email string) (*domain.Client, error)
	FindByPhone(ctx context.Context, tenantID, phone string) (*domain.Client, error)
	Create(ctx context.Context, client *domain.Client) error
}

// SessionRepository keeps one checkout session per terminal.
type SessionRepository interface {
	// Get returns ErrNotFound when the terminal has no session.
	Get(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error)
	Save(ctx context.Context, checkout *domain.Checkout) error
	Delete(ctx context.Context, tenantID, terminalID string) error
}
