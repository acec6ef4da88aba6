package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
)

// TieBreak orders jump-ring candidates that share a material.
type TieBreak string

// Tie-break orderings.
const (
	// TieBreakLowestCost picks the cheapest ring, then by name, then by id.
	TieBreakLowestCost TieBreak = "lowest_cost"
	// TieBreakStockOrder picks the first matching ring in the stock slice.
	TieBreakStockOrder TieBreak = "stock_order"
)

// ResolverOutput holds one resolution per cart line that needs rings, in
// cart order, plus advisory low-stock warnings.
type ResolverOutput struct {
	Resolutions []domain.JumpRingResolution `json:"resolutions"`
	Warnings    []string                    `json:"warnings"`
}

// JumpRingResolver matches cart lines to jump-ring stock by material. It
// reads nothing and writes nothing; the same inputs give the same output.
type JumpRingResolver struct {
	tieBreak TieBreak
}

// NewJumpRingResolver creates a resolver. Unknown orderings fall back to
// lowest cost.
func NewJumpRingResolver(tieBreak TieBreak) *JumpRingResolver {
	if tieBreak != TieBreakStockOrder {
		tieBreak = TieBreakLowestCost
	}
	return &JumpRingResolver{tieBreak: tieBreak}
}

// RingsNeeded returns how many jump rings item consumes.
func RingsNeeded(item domain.CartItem) int {
	switch item.RequiredKind {
	case domain.RequiredChain:
		perUnit := 1
		if item.JumpRingsPerUnit != nil {
			perUnit = *item.JumpRingsPerUnit
		}
		return perUnit * item.Quantity
	case domain.RequiredCharm, domain.RequiredConnector:
		return item.Quantity
	}
	return 0
}

// NormalizeMaterial trims, case-folds and collapses inner whitespace.
func NormalizeMaterial(material string) string {
	return strings.Join(strings.Fields(strings.ToLower(material)), " ")
}

// Resolve computes resolutions for items against stock.
func (r *JumpRingResolver) Resolve(items []domain.CartItem, stock []domain.InventoryItem) ResolverOutput {
	candidates := r.candidates(stock)

	out := ResolverOutput{
		Resolutions: []domain.JumpRingResolution{},
		Warnings:    []string{},
	}
	need := make(map[string]int)
	var order []*domain.InventoryItem

	for _, item := range items {
		needed := RingsNeeded(item)
		if needed <= 0 {
			continue
		}

		res := domain.JumpRingResolution{
			CartItemID:      item.ID,
			JumpRingsNeeded: needed,
			CostPerUnit:     decimal.Zero,
			Material:        item.Material,
			Source:          domain.SourceNone,
		}

		if material := NormalizeMaterial(item.Material); material != "" {
			if match, ok := candidates[material]; ok {
				id := match.ID
				res.InventoryItemID = &id
				res.CostPerUnit = match.CostPerUnit
				res.Resolved = true
				res.Source = domain.SourceAuto

				if _, seen := need[match.ID]; !seen {
					order = append(order, match)
				}
				need[match.ID] += needed
			}
		}

		out.Resolutions = append(out.Resolutions, res)
	}

	for _, ring := range order {
		required := decimal.NewFromInt(int64(need[ring.ID]))
		if ring.Quantity.LessThan(required) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: only %s left, %d needed", ring.Name, ring.Quantity.String(), need[ring.ID]))
		}
	}

	return out
}

// candidates picks one ring per normalized material.
func (r *JumpRingResolver) candidates(stock []domain.InventoryItem) map[string]*domain.InventoryItem {
	rings := make([]*domain.InventoryItem, 0, len(stock))
	for i := range stock {
		if stock[i].Kind == domain.KindJumpRing && stock[i].Active {
			rings = append(rings, &stock[i])
		}
	}

	if r.tieBreak == TieBreakLowestCost {
		sort.SliceStable(rings, func(i, j int) bool {
			a, b := rings[i], rings[j]
			if c := a.CostPerUnit.Cmp(b.CostPerUnit); c != 0 {
				return c < 0
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		})
	}

	byMaterial := make(map[string]*domain.InventoryItem, len(rings))
	for _, ring := range rings {
		material := NormalizeMaterial(ring.Material)
		if material == "" {
			continue
		}
		if _, taken := byMaterial[material]; !taken {
			byMaterial[material] = ring
		}
	}
	return byMaterial
}
