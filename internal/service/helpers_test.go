package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/repository/memory"
)

const tenant = "biz-1"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

// ============================================================================
// Mock EventPublisher
// ============================================================================

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishSaleCompleted(ctx context.Context, sale *domain.Sale, contact domain.Contact) error {
	return m.Called(ctx, sale, contact).Error(0)
}

func (m *mockEvents) PublishInventoryUpdated(ctx context.Context, item *domain.InventoryItem, delta decimal.Decimal, reason string, referenceID *string) error {
	return m.Called(ctx, item, delta, reason, referenceID).Error(0)
}

func (m *mockEvents) PublishInventoryLowStock(ctx context.Context, item *domain.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

func newMockEvents() *mockEvents {
	m := &mockEvents{}
	m.On("PublishSaleCompleted", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishInventoryUpdated", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishInventoryLowStock", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	store     *memory.Store
	events    *mockEvents
	inventory *InventoryService
	sales     *SaleService
	resolver  *JumpRingResolver
}

func newFixture(t *testing.T, allowOversell bool) *fixture {
	t.Helper()
	store := memory.New()
	events := newMockEvents()
	return &fixture{
		store:     store,
		events:    events,
		inventory: NewInventoryService(store, events, newTestLogger()),
		sales:     NewSaleService(store, events, nil, allowOversell, newTestLogger()),
		resolver:  NewJumpRingResolver(TieBreakLowestCost),
	}
}

func (f *fixture) seed(t *testing.T, name string, kind domain.Kind, material, qty, cost string) *domain.InventoryItem {
	t.Helper()
	item, err := f.inventory.Create(context.Background(), tenant, "owner", CreateItemInput{
		Name:        name,
		Kind:        kind,
		Material:    material,
		Quantity:    d(qty),
		CostPerUnit: d(cost),
		SellPrice:   d("0"),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) quantity(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	item, err := f.store.Inventory().GetByID(context.Background(), tenant, id)
	require.NoError(t, err)
	return item.Quantity
}

// commit resolves cart against current stock and commits it.
func (f *fixture) commit(t *testing.T, cart *domain.Cart, method string) (*SaleResult, error) {
	t.Helper()
	ctx := context.Background()
	stock, err := f.store.Inventory().ListJumpRings(ctx, tenant)
	require.NoError(t, err)
	out := f.resolver.Resolve(cart.Items, stock)
	return f.sales.Commit(ctx, CommitRequest{
		TenantID:         tenant,
		ActorID:          "staff-1",
		Cart:             cart,
		Resolutions:      out.Resolutions,
		ResolverWarnings: out.Warnings,
		PaymentMethod:    method,
	})
}

func newCart() *domain.Cart {
	return domain.NewCart(d("0.08"), d("0.03"))
}

func chainLine(chainID, inches, material string) domain.CartItem {
	return domain.CartItem{
		Name:             "Chain bracelet",
		Quantity:         1,
		UnitPrice:        d("60"),
		InventoryItemID:  &chainID,
		ChainInches:      ptr(d(inches)),
		RequiredKind:     domain.RequiredChain,
		JumpRingsPerUnit: ptr(1),
		Material:         material,
	}
}

func charmLine(qty int, material string) domain.CartItem {
	return domain.CartItem{
		Name:         "Charm",
		Quantity:     qty,
		UnitPrice:    d("15"),
		RequiredKind: domain.RequiredCharm,
		Material:     material,
	}
}
