package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/permalink-studio/pos/internal/domain"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

func TestInventoryCreate_SeedsRestockMovement(t *testing.T) {
	f := newFixture(t, true)
	item := f.seed(t, "Silver chain", domain.KindChain, "silver", "120.5", "0.45")

	assert.Equal(t, domain.UnitInches, item.Unit)
	assert.True(t, d("120.5").Equal(item.Quantity))
	assert.True(t, item.Active)

	movements := f.store.Movements(item.ID)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementRestock, movements[0].Reason)
	assert.True(t, d("120.5").Equal(movements[0].Delta))

	empty := f.seed(t, "Gold ring", domain.KindJumpRing, "gold", "0", "0.40")
	assert.Equal(t, domain.UnitCount, empty.Unit)
	assert.Empty(t, f.store.Movements(empty.ID))
}

func TestInventoryCreate_Validation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.inventory.Create(ctx, tenant, "owner", CreateItemInput{Name: " ", Kind: domain.KindChain})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.inventory.Create(ctx, tenant, "owner", CreateItemInput{Name: "x", Kind: "bead"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.inventory.Create(ctx, tenant, "owner", CreateItemInput{Name: "x", Kind: domain.KindCharm, CostPerUnit: d("-1")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestInventoryAdjust(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	item := f.seed(t, "Silver jump ring", domain.KindJumpRing, "silver", "5", "0.10")

	updated, err := f.inventory.Adjust(ctx, tenant, "owner", item.ID, AdjustInput{Delta: d("20"), Reason: domain.MovementRestock})
	require.NoError(t, err)
	assert.True(t, d("25").Equal(updated.Quantity))

	updated, err = f.inventory.Adjust(ctx, tenant, "owner", item.ID, AdjustInput{Delta: d("-3"), Reason: domain.MovementAdjustment, Note: "lost"})
	require.NoError(t, err)
	assert.True(t, d("22").Equal(updated.Quantity))

	_, err = f.inventory.Adjust(ctx, tenant, "owner", item.ID, AdjustInput{Delta: d("-50"), Reason: domain.MovementAdjustment})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	_, err = f.inventory.Adjust(ctx, tenant, "owner", item.ID, AdjustInput{Delta: d("-1"), Reason: domain.MovementRestock})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.inventory.Adjust(ctx, tenant, "owner", item.ID, AdjustInput{Delta: d("1"), Reason: domain.MovementSale})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.inventory.Adjust(ctx, tenant, "owner", "missing", AdjustInput{Delta: d("1"), Reason: domain.MovementReturn})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	movements, total, err := f.inventory.Movements(ctx, tenant, item.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "lost", movements[0].Note)

	report, err := f.inventory.VerifyLedger(ctx, tenant, item.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.True(t, d("22").Equal(report.MovementSum))
}

func TestInventoryUpdate_NeverTouchesQuantity(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	item := f.seed(t, "Silver chain", domain.KindChain, "silver", "30", "0.45")

	updated, err := f.inventory.Update(ctx, tenant, item.ID, UpdateInventoryInput{
		Name:        ptr("Sterling cable chain"),
		CostPerUnit: ptr(d("0.55")),
		Active:      ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "Sterling cable chain", updated.Name)
	assert.False(t, updated.Active)

	stored, err := f.inventory.Get(ctx, tenant, item.ID)
	require.NoError(t, err)
	assert.True(t, d("30").Equal(stored.Quantity))
	assert.True(t, d("0.55").Equal(stored.CostPerUnit))

	_, err = f.inventory.Update(ctx, tenant, item.ID, UpdateInventoryInput{SellPrice: ptr(d("-2"))})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.inventory.Get(ctx, "other-tenant", item.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventoryListAndLowStock(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "Silver chain", domain.KindChain, "silver", "30", "0.45")
	low, err := f.inventory.Create(ctx, tenant, "owner", CreateItemInput{
		Name: "Gold ring", Kind: domain.KindJumpRing, Material: "gold",
		Quantity: d("3"), CostPerUnit: d("0.4"), LowStockThreshold: d("5"),
	})
	require.NoError(t, err)

	items, total, err := f.inventory.List(ctx, tenant, domain.InventoryFilter{Kind: domain.KindJumpRing}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, low.ID, items[0].ID)

	_, _, err = f.inventory.List(ctx, tenant, domain.InventoryFilter{Kind: "bead"}, 1, 20)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	lows, err := f.inventory.LowStock(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, lows, 1)
	assert.Equal(t, low.ID, lows[0].ID)

	f.events.AssertCalled(t, "PublishInventoryLowStock", mock.Anything, mock.MatchedBy(func(item *domain.InventoryItem) bool {
		return item.ID == low.ID
	}))
}
