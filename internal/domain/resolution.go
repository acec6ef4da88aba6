package domain

import "github.com/shopspring/decimal"

// ResolutionSource records how a resolution was reached.
type ResolutionSource string

// Resolution sources.
const (
	SourceAuto     ResolutionSource = "auto"
	SourceOverride ResolutionSource = "override"
	SourceNone     ResolutionSource = "none"
)

// JumpRingResolution is the jump-ring stock chosen for one cart line. It is
// computed per checkout attempt and never stored on its own.
type JumpRingResolution struct {
	CartItemID      string           `json:"cart_item_id"`
	JumpRingsNeeded int              `json:"jump_rings_needed"`
	InventoryItemID *string          `json:"inventory_item_id,omitempty"`
	CostPerUnit     decimal.Decimal  `json:"cost_per_unit"`
	Material        string           `json:"material"`
	Resolved        bool             `json:"resolved"`
	Source          ResolutionSource `json:"source"`
}

// Consumes reports whether committing r takes rings from stock.
func (r *JumpRingResolution) Consumes() bool {
	return r.Resolved && r.JumpRingsNeeded > 0 && r.InventoryItemID != nil
}

// Cost is the jump-ring cost apportioned to the line.
func (r *JumpRingResolution) Cost() decimal.Decimal {
	if !r.Resolved {
		return decimal.Zero
	}
	return r.CostPerUnit.Mul(decimal.NewFromInt(int64(r.JumpRingsNeeded)))
}

// ResolutionOverride is an operator's choice for one cart line. A nil
// InventoryItemID means no jump ring was used.
type ResolutionOverride struct {
	CartItemID      string          `json:"cart_item_id"`
	InventoryItemID *string         `json:"inventory_item_id"`
	CostPerUnit     decimal.Decimal `json:"cost_per_unit"`
	Material        string          `json:"material"`
}
