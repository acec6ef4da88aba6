package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permalink-studio/pos/internal/domain"
)

func unresolved(id string, needed int, material string) domain.JumpRingResolution {
	return domain.JumpRingResolution{
		CartItemID:      id,
		JumpRingsNeeded: needed,
		Material:        material,
		Source:          domain.SourceNone,
	}
}

func TestApplyOverrides_NoOverridesKeepsUnresolved(t *testing.T) {
	in := []domain.JumpRingResolution{unresolved("a", 1, "rose gold")}
	out := ApplyOverrides(in, nil)

	require.Len(t, out, 1)
	assert.False(t, out[0].Resolved)
	assert.Nil(t, out[0].InventoryItemID)
	assert.Len(t, Unresolved(out), 1)
}

func TestApplyOverrides_SubstituteRing(t *testing.T) {
	in := []domain.JumpRingResolution{unresolved("a", 2, "rose gold")}
	out := ApplyOverrides(in, []domain.ResolutionOverride{
		{CartItemID: "a", InventoryItemID: ptr("r-gold"), CostPerUnit: d("0.40")},
	})

	require.Len(t, out, 1)
	assert.True(t, out[0].Resolved)
	assert.Equal(t, domain.SourceOverride, out[0].Source)
	assert.Equal(t, "r-gold", *out[0].InventoryItemID)
	assert.Equal(t, 2, out[0].JumpRingsNeeded)
	assert.True(t, d("0.80").Equal(out[0].Cost()))
	assert.Equal(t, "rose gold", out[0].Material)
	assert.Empty(t, Unresolved(out))
}

func TestApplyOverrides_NoRingUsed(t *testing.T) {
	in := []domain.JumpRingResolution{unresolved("a", 2, "rose gold")}
	out := ApplyOverrides(in, []domain.ResolutionOverride{{CartItemID: "a"}})

	require.Len(t, out, 1)
	assert.True(t, out[0].Resolved)
	assert.Equal(t, 0, out[0].JumpRingsNeeded)
	assert.True(t, out[0].Cost().IsZero())
	assert.False(t, out[0].Consumes())
}

func TestApplyOverrides_LastWinsAndUnknownIgnored(t *testing.T) {
	in := []domain.JumpRingResolution{unresolved("a", 1, "silver"), unresolved("b", 1, "gold")}
	out := ApplyOverrides(in, []domain.ResolutionOverride{
		{CartItemID: "a", InventoryItemID: ptr("first")},
		{CartItemID: "zzz", InventoryItemID: ptr("ghost")},
		{CartItemID: "a", InventoryItemID: ptr("second"), Material: "sterling"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "second", *out[0].InventoryItemID)
	assert.Equal(t, "sterling", out[0].Material)
	assert.Equal(t, in[1], out[1])
}

func TestApplyOverrides_LengthAlwaysMatchesInput(t *testing.T) {
	in := []domain.JumpRingResolution{unresolved("a", 1, "x"), unresolved("b", 2, "y"), unresolved("c", 3, "z")}
	ids := []string{"a", "b", "c", "d"}

	for n := 0; n <= 12; n++ {
		var overrides []domain.ResolutionOverride
		for i := 0; i < n; i++ {
			overrides = append(overrides, domain.ResolutionOverride{
				CartItemID:      ids[i%len(ids)],
				InventoryItemID: ptr(fmt.Sprintf("ring-%d", i)),
			})
		}
		out := ApplyOverrides(in, overrides)
		require.Len(t, out, len(in), "overrides=%d", n)
		for i := range in {
			assert.Equal(t, in[i].CartItemID, out[i].CartItemID)
		}
	}
}
