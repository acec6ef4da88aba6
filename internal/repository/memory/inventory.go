package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

type inventoryRepo struct {
	v  view
	tx bool
}

func (r *inventoryRepo) Create(_ context.Context, item *domain.InventoryItem) error {
	return r.v.write("Inventory.Create", func(st *state) error {
		if _, ok := st.items[item.ID]; ok {
			return apperrors.AlreadyExists("inventory item", "id", item.ID)
		}
		st.items[item.ID] = *item
		return nil
	})
}

func (r *inventoryRepo) GetByID(_ context.Context, tenantID, id string) (*domain.InventoryItem, error) {
	var out domain.InventoryItem
	err := r.v.read(func(st *state) error {
		item, ok := st.items[id]
		if !ok || item.TenantID != tenantID {
			return apperrors.NotFound("inventory item", id)
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *inventoryRepo) filtered(tenantID string, keep func(domain.InventoryItem) bool) []domain.InventoryItem {
	var out []domain.InventoryItem
	_ = r.v.read(func(st *state) error {
		for _, item := range st.items {
			if item.TenantID == tenantID && keep(item) {
				out = append(out, item)
			}
		}
		return nil
	})
	return out
}

func (r *inventoryRepo) List(_ context.Context, tenantID string, filter domain.InventoryFilter, p, perPage int) ([]domain.InventoryItem, int, error) {
	items := r.filtered(tenantID, func(item domain.InventoryItem) bool {
		if filter.Kind != "" && item.Kind != filter.Kind {
			return false
		}
		return filter.Active == nil || item.Active == *filter.Active
	})
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return page(items, p, perPage), len(items), nil
}

func (r *inventoryRepo) ListJumpRings(_ context.Context, tenantID string) ([]domain.InventoryItem, error) {
	items := r.filtered(tenantID, func(item domain.InventoryItem) bool {
		return item.Kind == domain.KindJumpRing && item.Active
	})
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CostPerUnit.Equal(b.CostPerUnit) {
			return a.CostPerUnit.LessThan(b.CostPerUnit)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return items, nil
}

// LockForUpdate returns copies; the store-wide transaction lock already
// excludes other writers.
func (r *inventoryRepo) LockForUpdate(_ context.Context, tenantID string, ids []string) (map[string]*domain.InventoryItem, error) {
	out := make(map[string]*domain.InventoryItem, len(ids))
	err := r.v.read(func(st *state) error {
		for _, id := range sortedIDs(ids) {
			item, ok := st.items[id]
			if !ok || item.TenantID != tenantID {
				continue
			}
			out[id] = &item
		}
		return nil
	})
	return out, err
}

func (r *inventoryRepo) ApplyDelta(_ context.Context, tenantID, id string, delta decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.v.write("Inventory.ApplyDelta", func(st *state) error {
		item, ok := st.items[id]
		if !ok || item.TenantID != tenantID {
			return apperrors.NotFound("inventory item", id)
		}
		next := item.Quantity.Add(delta)
		if !allowNegative && next.IsNegative() {
			return apperrors.InsufficientStock(item.Name)
		}
		item.Quantity = next
		st.items[id] = item
		qty = next
		return nil
	})
	return qty, err
}

func (r *inventoryRepo) InsertMovement(_ context.Context, m *domain.InventoryMovement) error {
	return r.v.write("Inventory.InsertMovement", func(st *state) error {
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r *inventoryRepo) ListMovements(_ context.Context, tenantID, itemID string, p, perPage int) ([]domain.InventoryMovement, int, error) {
	var out []domain.InventoryMovement
	_ = r.v.read(func(st *state) error {
		for i := len(st.movements) - 1; i >= 0; i-- {
			m := st.movements[i]
			if m.TenantID == tenantID && m.InventoryItemID == itemID {
				out = append(out, m)
			}
		}
		return nil
	})
	return page(out, p, perPage), len(out), nil
}

func (r *inventoryRepo) SumMovements(_ context.Context, tenantID, itemID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.v.read(func(st *state) error {
		for _, m := range st.movements {
			if m.TenantID == tenantID && m.InventoryItemID == itemID {
				sum = sum.Add(m.Delta)
			}
		}
		return nil
	})
	return sum, err
}

func (r *inventoryRepo) ListLowStock(_ context.Context, tenantID string) ([]domain.InventoryItem, error) {
	items := r.filtered(tenantID, func(item domain.InventoryItem) bool {
		return item.Active && item.IsLowStock()
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (r *inventoryRepo) Update(_ context.Context, item *domain.InventoryItem) error {
	return r.v.write("Inventory.Update", func(st *state) error {
		current, ok := st.items[item.ID]
		if !ok || current.TenantID != item.TenantID {
			return apperrors.NotFound("inventory item", item.ID)
		}
		updated := *item
		updated.Quantity = current.Quantity
		updated.Kind = current.Kind
		updated.Unit = current.Unit
		updated.CreatedAt = current.CreatedAt
		st.items[item.ID] = updated
		return nil
	})
}
