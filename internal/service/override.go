package service

import (
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
)

// ApplyOverrides merges operator overrides into resolutions by cart-item id.
// The result has the same length and order as resolutions; overrides for
// unknown lines are ignored and the last override for a line wins. An
// override without an inventory item records that no ring was used.
func ApplyOverrides(resolutions []domain.JumpRingResolution, overrides []domain.ResolutionOverride) []domain.JumpRingResolution {
	latest := make(map[string]domain.ResolutionOverride, len(overrides))
	for _, o := range overrides {
		latest[o.CartItemID] = o
	}

	merged := make([]domain.JumpRingResolution, len(resolutions))
	for i, res := range resolutions {
		o, ok := latest[res.CartItemID]
		if !ok {
			merged[i] = res
			continue
		}

		material := res.Material
		if o.Material != "" {
			material = o.Material
		}

		if o.InventoryItemID == nil {
			merged[i] = domain.JumpRingResolution{
				CartItemID:      res.CartItemID,
				JumpRingsNeeded: 0,
				CostPerUnit:     decimal.Zero,
				Material:        material,
				Resolved:        true,
				Source:          domain.SourceOverride,
			}
			continue
		}

		id := *o.InventoryItemID
		merged[i] = domain.JumpRingResolution{
			CartItemID:      res.CartItemID,
			JumpRingsNeeded: res.JumpRingsNeeded,
			InventoryItemID: &id,
			CostPerUnit:     o.CostPerUnit,
			Material:        material,
			Resolved:        true,
			Source:          domain.SourceOverride,
		}
	}
	return merged
}

// Unresolved returns the resolutions still lacking a match.
func Unresolved(resolutions []domain.JumpRingResolution) []domain.JumpRingResolution {
	var out []domain.JumpRingResolution
	for _, r := range resolutions {
		if !r.Resolved {
			out = append(out, r)
		}
	}
	return out
}
