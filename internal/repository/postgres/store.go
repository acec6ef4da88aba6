package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/permalink-studio/pos/internal/repository"
	"github.com/permalink-studio/pos/pkg/database"
)

// Store is the PostgreSQL repository.Store.
type Store struct {
	db database.DBTX
}

// NewStore creates a store over a pool (or anything satisfying DBTX).
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// Begin starts a read-committed transaction. Row locks taken through
// LockForUpdate serialize concurrent sales.
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Inventory implements repository.Store.
func (s *Store) Inventory() repository.InventoryRepository { return NewInventoryRepository(s.db) }

// Sales implements repository.Store.
func (s *Store) Sales() repository.SaleRepository { return NewSaleRepository(s.db) }

// Clients implements repository.Store.
func (s *Store) Clients() repository.ClientRepository { return NewClientRepository(s.db) }

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Inventory implements repository.Tx.
func (t *Tx) Inventory() repository.InventoryRepository { return NewInventoryRepository(t.tx) }

// Sales implements repository.Tx.
func (t *Tx) Sales() repository.SaleRepository { return NewSaleRepository(t.tx) }

// Clients implements repository.Tx.
func (t *Tx) Clients() repository.ClientRepository { return NewClientRepository(t.tx) }

// Commit implements repository.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback implements repository.Tx. pgx makes it a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
