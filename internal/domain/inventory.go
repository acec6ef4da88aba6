package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a stocked item.
type Kind string

// Inventory kinds.
const (
	KindChain     Kind = "chain"
	KindJumpRing  Kind = "jump_ring"
	KindCharm     Kind = "charm"
	KindConnector Kind = "connector"
	KindOther     Kind = "other"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindChain, KindJumpRing, KindCharm, KindConnector, KindOther:
		return true
	}
	return false
}

// Units of measure.
const (
	UnitInches = "inches"
	UnitCount  = "count"
)

// UnitFor returns the unit an item of kind k is stocked in.
func UnitFor(k Kind) string {
	if k == KindChain {
		return UnitInches
	}
	return UnitCount
}

// InventoryItem is a stocked resource. Quantity changes only through
// movements.
type InventoryItem struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	Name              string          `json:"name"`
	Kind              Kind            `json:"kind"`
	Material          string          `json:"material"`
	Unit              string          `json:"unit"`
	Quantity          decimal.Decimal `json:"quantity"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsLowStock reports whether on-hand stock is at or below the threshold.
// A zero threshold only flags empty or oversold items.
func (i *InventoryItem) IsLowStock() bool {
	return i.Quantity.LessThanOrEqual(i.LowStockThreshold)
}

// InventoryFilter narrows inventory listings.
type InventoryFilter struct {
	Kind   Kind
	Active *bool
}

// Movement reasons.
const (
	MovementSale       = "sale"
	MovementJumpRing   = "jump_ring"
	MovementAdjustment = "adjustment"
	MovementRestock    = "restock"
	MovementReturn     = "return"
)

// IsValidMovementReason reports whether reason is known.
func IsValidMovementReason(reason string) bool {
	switch reason {
	case MovementSale, MovementJumpRing, MovementAdjustment, MovementRestock, MovementReturn:
		return true
	}
	return false
}

// InventoryMovement is an append-only ledger entry. The sum of an item's
// movement deltas equals its on-hand quantity.
type InventoryMovement struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	InventoryItemID string          `json:"inventory_item_id"`
	Delta           decimal.Decimal `json:"delta"`
	Reason          string          `json:"reason"`
	ReferenceID     *string         `json:"reference_id,omitempty"`
	Note            string          `json:"note,omitempty"`
	ActorID         string          `json:"actor_id"`
	CreatedAt       time.Time       `json:"created_at"`
}
