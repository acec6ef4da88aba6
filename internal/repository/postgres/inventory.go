package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/pkg/database"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

const itemColumns = `id, tenant_id, name, kind, material, unit, quantity, cost_per_unit,
	sell_price, low_stock_threshold, active, created_at, updated_at`

// InventoryRepository persists inventory items and movements.
type InventoryRepository struct {
	db database.DBTX
}

// NewInventoryRepository creates an inventory repository.
func NewInventoryRepository(db database.DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func scanItem(row pgx.Row, extra ...any) (*domain.InventoryItem, error) {
	var (
		item domain.InventoryItem
		kind string
	)
	dest := []any{
		&item.ID, &item.TenantID, &item.Name, &kind, &item.Material, &item.Unit,
		&item.Quantity, &item.CostPerUnit, &item.SellPrice, &item.LowStockThreshold,
		&item.Active, &item.CreatedAt, &item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	item.Kind = domain.Kind(kind)
	return &item, nil
}

func collectItems(rows pgx.Rows) ([]domain.InventoryItem, error) {
	defer rows.Close()
	var items []domain.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory items: %w", err)
	}
	return items, nil
}

// Create inserts an item.
func (r *InventoryRepository) Create(ctx context.Context, item *domain.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		item.ID,
		item.TenantID,
		item.Name,
		string(item.Kind),
		item.Material,
		item.Unit,
		item.Quantity,
		item.CostPerUnit,
		item.SellPrice,
		item.LowStockThreshold,
		item.Active,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create inventory item: %w", err)
	}
	return nil
}

// GetByID returns an item or ErrNotFound.
func (r *InventoryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE tenant_id = $1 AND id = $2`

	item, err := scanItem(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("inventory item", id)
		}
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return item, nil
}

// List returns a page of items ordered by name.
func (r *InventoryRepository) List(ctx context.Context, tenantID string, filter domain.InventoryFilter, page, perPage int) ([]domain.InventoryItem, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, "kind = $"+strconv.Itoa(len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, "active = $"+strconv.Itoa(len(args)))
	}
	args = append(args, perPage, (page-1)*perPage)

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM inventory_items
		WHERE %s
		ORDER BY name, id
		LIMIT $%d OFFSET $%d`,
		itemColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list inventory items: %w", err)
	}
	defer rows.Close()

	var (
		items []domain.InventoryItem
		total int
	)
	for rows.Next() {
		item, err := scanItem(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate inventory items: %w", err)
	}
	return items, total, nil
}

// ListJumpRings returns active jump-ring stock, cheapest first.
func (r *InventoryRepository) ListJumpRings(ctx context.Context, tenantID string) ([]domain.InventoryItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE tenant_id = $1 AND kind = 'jump_ring' AND active
		ORDER BY cost_per_unit, name, id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list jump rings: %w", err)
	}
	return collectItems(rows)
}

// LockForUpdate row-locks ids in id order.
func (r *InventoryRepository) LockForUpdate(ctx context.Context, tenantID string, ids []string) (out map[string]*domain.InventoryItem, err error) {
	out = make(map[string]*domain.InventoryItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "LockInventory", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock inventory items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	for i := range items {
		out[items[i].ID] = &items[i]
	}
	return out, nil
}

// ApplyDelta adds delta in one conditional UPDATE. When the guard refuses
// the update the row is probed to tell a missing item from short stock.
func (r *InventoryRepository) ApplyDelta(ctx context.Context, tenantID, id string, delta decimal.Decimal, allowNegative bool) (qty decimal.Decimal, err error) {
	query := `
		UPDATE inventory_items
		SET quantity = quantity + $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND ($4 OR quantity + $3 >= 0)
		RETURNING quantity`

	ctx, end := database.TraceQuery(ctx, "ApplyInventoryDelta", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query, tenantID, id, delta, allowNegative).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("apply inventory delta: %w", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory_items WHERE tenant_id = $1 AND id = $2)`, tenantID, id,
	).Scan(&exists); err != nil {
		return decimal.Zero, fmt.Errorf("check inventory item: %w", err)
	}
	if !exists {
		return decimal.Zero, apperrors.NotFound("inventory item", id)
	}
	return decimal.Zero, fmt.Errorf("apply %s to %s: %w", delta.String(), id, apperrors.ErrInsufficientStock)
}

// InsertMovement appends a ledger entry.
func (r *InventoryRepository) InsertMovement(ctx context.Context, m *domain.InventoryMovement) error {
	query := `
		INSERT INTO inventory_movements (id, tenant_id, inventory_item_id, delta, reason, reference_id, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		m.ID,
		m.TenantID,
		m.InventoryItemID,
		m.Delta,
		m.Reason,
		m.ReferenceID,
		m.Note,
		m.ActorID,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory movement: %w", err)
	}
	return nil
}

// ListMovements returns an item's ledger, newest first.
func (r *InventoryRepository) ListMovements(ctx context.Context, tenantID, itemID string, page, perPage int) ([]domain.InventoryMovement, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	query := `
		SELECT id, tenant_id, inventory_item_id, delta, reason, reference_id, note, actor_id, created_at,
			   count(*) OVER() AS total_count
		FROM inventory_movements
		WHERE tenant_id = $1 AND inventory_item_id = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, tenantID, itemID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list inventory movements: %w", err)
	}
	defer rows.Close()

	var (
		movements []domain.InventoryMovement
		total     int
	)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.InventoryItemID, &m.Delta, &m.Reason,
			&m.ReferenceID, &m.Note, &m.ActorID, &m.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan inventory movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate inventory movements: %w", err)
	}
	return movements, total, nil
}

// SumMovements totals an item's ledger.
func (r *InventoryRepository) SumMovements(ctx context.Context, tenantID, itemID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(delta), 0)
		FROM inventory_movements
		WHERE tenant_id = $1 AND inventory_item_id = $2`

	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, tenantID, itemID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum inventory movements: %w", err)
	}
	return sum, nil
}

// ListLowStock returns active items at or below their threshold.
func (r *InventoryRepository) ListLowStock(ctx context.Context, tenantID string) ([]domain.InventoryItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE tenant_id = $1 AND active AND quantity <= low_stock_threshold
		ORDER BY name, id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return collectItems(rows)
}

// Update writes descriptive fields.
func (r *InventoryRepository) Update(ctx context.Context, item *domain.InventoryItem) error {
	query := `
		UPDATE inventory_items
		SET name = $3, material = $4, cost_per_unit = $5, sell_price = $6,
			low_stock_threshold = $7, active = $8, updated_at = $9
		WHERE tenant_id = $1 AND id = $2`

	tag, err := r.db.Exec(ctx, query,
		item.TenantID,
		item.ID,
		item.Name,
		item.Material,
		item.CostPerUnit,
		item.SellPrice,
		item.LowStockThreshold,
		item.Active,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("inventory item", item.ID)
	}
	return nil
}
