package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/pkg/database"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

const saleColumns = `id, tenant_id, client_id, event_id, subtotal, discount_total, tax, tip,
	platform_fee, total, tax_rate, platform_fee_rate, payment_method, payment_reference,
	actor_id, receipt_sent_at, created_at`

const saleItemColumns = `id, sale_id, cart_item_id, inventory_item_id, name, quantity, unit_price,
	discount_type, discount_value, line_total, chain_inches, chain_material_cost,
	jump_ring_inventory_item_id, jump_rings_used, jump_ring_cost, material`

// SaleRepository persists sales and sale items.
type SaleRepository struct {
	db database.DBTX
}

// NewSaleRepository creates a sale repository.
func NewSaleRepository(db database.DBTX) *SaleRepository {
	return &SaleRepository{db: db}
}

func scanSale(row pgx.Row, extra ...any) (*domain.Sale, error) {
	var s domain.Sale
	dest := []any{
		&s.ID, &s.TenantID, &s.ClientID, &s.EventID, &s.Subtotal, &s.DiscountTotal,
		&s.Tax, &s.Tip, &s.PlatformFee, &s.Total, &s.TaxRate, &s.PlatformFeeRate,
		&s.PaymentMethod, &s.PaymentReference, &s.ActorID, &s.ReceiptSentAt, &s.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a sale header.
func (r *SaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	query := `
		INSERT INTO sales (id, tenant_id, client_id, event_id, subtotal, discount_total, tax, tip,
			platform_fee, total, tax_rate, platform_fee_rate, payment_method, payment_reference,
			actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		sale.ID,
		sale.TenantID,
		sale.ClientID,
		sale.EventID,
		sale.Subtotal,
		sale.DiscountTotal,
		sale.Tax,
		sale.Tip,
		sale.PlatformFee,
		sale.Total,
		sale.TaxRate,
		sale.PlatformFeeRate,
		sale.PaymentMethod,
		sale.PaymentReference,
		sale.ActorID,
		sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create sale: %w", err)
	}
	return nil
}

// CreateItem inserts a sale line snapshot.
func (r *SaleRepository) CreateItem(ctx context.Context, item *domain.SaleItem) error {
	query := `
		INSERT INTO sale_items (` + saleItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	inches := decimal.NullDecimal{}
	if item.ChainInches != nil {
		inches = decimal.NewNullDecimal(*item.ChainInches)
	}

	_, err := r.db.Exec(ctx, query,
		item.ID,
		item.SaleID,
		item.CartItemID,
		item.InventoryItemID,
		item.Name,
		item.Quantity,
		item.UnitPrice,
		item.DiscountType,
		item.DiscountValue,
		item.LineTotal,
		inches,
		item.ChainMaterialCost,
		item.JumpRingInventoryItemID,
		item.JumpRingsUsed,
		item.JumpRingCost,
		item.Material,
	)
	if err != nil {
		return fmt.Errorf("create sale item: %w", err)
	}
	return nil
}

// GetByID returns a sale with its items in cart order.
func (r *SaleRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE tenant_id = $1 AND id = $2`

	sale, err := scanSale(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("sale", id)
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

func (r *SaleRepository) listItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	query := `SELECT ` + saleItemColumns + ` FROM sale_items WHERE sale_id = $1 ORDER BY seq`

	rows, err := r.db.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()

	items := []domain.SaleItem{}
	for rows.Next() {
		var (
			it     domain.SaleItem
			inches decimal.NullDecimal
		)
		if err := rows.Scan(
			&it.ID, &it.SaleID, &it.CartItemID, &it.InventoryItemID, &it.Name, &it.Quantity,
			&it.UnitPrice, &it.DiscountType, &it.DiscountValue, &it.LineTotal, &inches,
			&it.ChainMaterialCost, &it.JumpRingInventoryItemID, &it.JumpRingsUsed,
			&it.JumpRingCost, &it.Material,
		); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		if inches.Valid {
			v := inches.Decimal
			it.ChainInches = &v
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}
	return items, nil
}

// List returns sale headers, newest first.
func (r *SaleRepository) List(ctx context.Context, tenantID string, filter domain.SaleFilter, page, perPage int) ([]domain.Sale, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, cond+" $"+strconv.Itoa(len(args)))
	}
	if filter.ClientID != nil {
		add("client_id =", *filter.ClientID)
	}
	if filter.EventID != nil {
		add("event_id =", *filter.EventID)
	}
	if filter.From != nil {
		add("created_at >=", *filter.From)
	}
	if filter.To != nil {
		add("created_at <", *filter.To)
	}
	args = append(args, perPage, (page-1)*perPage)

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM sales
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		saleColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var (
		sales []domain.Sale
		total int
	)
	for rows.Next() {
		sale, err := scanSale(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, total, nil
}

// MarkReceiptSent stamps receipt_sent_at.
func (r *SaleRepository) MarkReceiptSent(ctx context.Context, tenantID, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sales SET receipt_sent_at = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, at,
	)
	if err != nil {
		return fmt.Errorf("mark receipt sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("sale", id)
	}
	return nil
}
