// Package memory is an in-process Store. Transactions are serialized by a
// store-wide lock and work on a private copy that replaces the committed
// state on Commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/repository"
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

type state struct {
	items     map[string]domain.InventoryItem
	movements []domain.InventoryMovement
	sales     map[string]domain.Sale
	saleItems map[string][]domain.SaleItem
	clients   map[string]domain.Client
}

func newState() *state {
	return &state{
		items:     make(map[string]domain.InventoryItem),
		sales:     make(map[string]domain.Sale),
		saleItems: make(map[string][]domain.SaleItem),
		clients:   make(map[string]domain.Client),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.items {
		c.items[k] = v
	}
	c.movements = append(c.movements, s.movements...)
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.saleItems {
		c.saleItems[k] = append([]domain.SaleItem(nil), v...)
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	return c
}

// view gives repositories access to a state under the right locks.
type view interface {
	read(fn func(st *state) error) error
	write(op string, fn func(st *state) error) error
}

// Store is an in-memory repository.Store.
type Store struct {
	txMu   sync.Mutex
	dataMu sync.RWMutex
	st     *state

	faultMu sync.Mutex
	faults  map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState(), faults: make(map[string]error)}
}

// FailOn makes the named write operation fail with err inside
// transactions, for example "Inventory.InsertMovement". A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

func (s *Store) read(fn func(st *state) error) error {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(_ string, fn func(st *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return fn(s.st)
}

// Begin waits for any running transaction to finish, then starts one.
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	done := make(chan struct{})
	go func() {
		s.txMu.Lock()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		go func() {
			<-done
			s.txMu.Unlock()
		}()
		return nil, ctx.Err()
	}

	s.dataMu.RLock()
	work := s.st.clone()
	s.dataMu.RUnlock()
	return &Tx{store: s, st: work}, nil
}

// Inventory implements repository.Store.
func (s *Store) Inventory() repository.InventoryRepository { return &inventoryRepo{v: s} }

// Sales implements repository.Store.
func (s *Store) Sales() repository.SaleRepository { return &saleRepo{v: s} }

// Clients implements repository.Store.
func (s *Store) Clients() repository.ClientRepository { return &clientRepo{v: s} }

// Movements returns every committed movement for an item in insertion order.
func (s *Store) Movements(itemID string) []domain.InventoryMovement {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	var out []domain.InventoryMovement
	for _, m := range s.st.movements {
		if m.InventoryItemID == itemID {
			out = append(out, m)
		}
	}
	return out
}

// Counts reports committed row counts.
func (s *Store) Counts() (sales, saleItems, movements int) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	for _, items := range s.st.saleItems {
		saleItems += len(items)
	}
	return len(s.st.sales), saleItems, len(s.st.movements)
}

// Tx is an in-memory transaction.
type Tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *Tx) read(fn func(st *state) error) error {
	if t.done {
		return ErrTxDone
	}
	return fn(t.st)
}

func (t *Tx) write(op string, fn func(st *state) error) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.store.fault(op); err != nil {
		return err
	}
	return fn(t.st)
}

// Inventory implements repository.Tx.
func (t *Tx) Inventory() repository.InventoryRepository { return &inventoryRepo{v: t, tx: true} }

// Sales implements repository.Tx.
func (t *Tx) Sales() repository.SaleRepository { return &saleRepo{v: t} }

// Clients implements repository.Tx.
func (t *Tx) Clients() repository.ClientRepository { return &clientRepo{v: t} }

// Commit publishes the transaction's state.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.store.fault("Commit"); err != nil {
		return err
	}
	t.store.dataMu.Lock()
	t.store.st = t.st
	t.store.dataMu.Unlock()
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.st = nil
	t.store.txMu.Unlock()
	return nil
}

func page[T any](all []T, p, perPage int) []T {
	if p < 1 {
		p = 1
	}
	if perPage < 1 {
		return all
	}
	start := (p - 1) * perPage
	if start >= len(all) {
		return []T{}
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func sortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
