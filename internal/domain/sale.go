package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods accepted at the register.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentVenmo    = "venmo"
	PaymentExternal = "external"
)

// Sale is a committed checkout. Only ReceiptSentAt changes after creation.
type Sale struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	ClientID         *string         `json:"client_id,omitempty"`
	EventID          *string         `json:"event_id,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	Tax              decimal.Decimal `json:"tax"`
	Tip              decimal.Decimal `json:"tip"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	Total            decimal.Decimal `json:"total"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	PlatformFeeRate  decimal.Decimal `json:"platform_fee_rate"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	ActorID          string          `json:"actor_id"`
	ReceiptSentAt    *time.Time      `json:"receipt_sent_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Items            []SaleItem      `json:"items"`
}

// SaleItem snapshots a cart line and its material costs at sale time.
type SaleItem struct {
	ID                      string           `json:"id"`
	SaleID                  string           `json:"sale_id"`
	CartItemID              string           `json:"cart_item_id"`
	InventoryItemID         *string          `json:"inventory_item_id,omitempty"`
	Name                    string           `json:"name"`
	Quantity                int              `json:"quantity"`
	UnitPrice               decimal.Decimal  `json:"unit_price"`
	DiscountType            *string          `json:"discount_type,omitempty"`
	DiscountValue           decimal.Decimal  `json:"discount_value"`
	LineTotal               decimal.Decimal  `json:"line_total"`
	ChainInches             *decimal.Decimal `json:"chain_inches,omitempty"`
	ChainMaterialCost       decimal.Decimal  `json:"chain_material_cost"`
	JumpRingInventoryItemID *string          `json:"jump_ring_inventory_item_id,omitempty"`
	JumpRingsUsed           int              `json:"jump_rings_used"`
	JumpRingCost            decimal.Decimal  `json:"jump_ring_cost"`
	Material                string           `json:"material,omitempty"`
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	ClientID *string
	EventID  *string
	From     *time.Time
	To       *time.Time
}

// Client is a customer record.
type Client struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizePhone keeps digits only and drops a leading US country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
