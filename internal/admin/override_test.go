package admin

import (
	"testing"

	"paperbroker/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func TestApplyPatchValueDelta(t *testing.T) {
	old := model.Position{Quantity: dec("10"), AveragePrice: dec("2500")}

	// Quantity bumped from 10 to 12: delta = 12*2500 - 10*2500.
	next, delta := applyPatch(old, PositionPatch{Quantity: decPtr("12")})
	assert.True(t, next.Quantity.Equal(dec("12")))
	assert.True(t, delta.Equal(dec("5000")), "delta %s", delta)

	// Price corrected downward: delta is negative.
	_, delta = applyPatch(old, PositionPatch{AveragePrice: decPtr("2400")})
	assert.True(t, delta.Equal(dec("-1000")), "delta %s", delta)

	// Both at once.
	next, delta = applyPatch(old, PositionPatch{Quantity: decPtr("5"), AveragePrice: decPtr("2600")})
	assert.True(t, next.AveragePrice.Equal(dec("2600")))
	assert.True(t, delta.Equal(dec("-12000")), "delta %s", delta)
}

func TestApplyPatchLeavesUntouchedFields(t *testing.T) {
	old := model.Position{
		Quantity:     dec("10"),
		AveragePrice: dec("2500"),
		Symbol:       "RELIANCE",
		RealizedPnL:  dec("300"),
	}

	next, delta := applyPatch(old, PositionPatch{Symbol: strPtr("RELIANCE-BE"), RealizedPnL: decPtr("450")})
	assert.Equal(t, "RELIANCE-BE", next.Symbol)
	assert.True(t, next.RealizedPnL.Equal(dec("450")))
	// Symbol and P&L edits do not move position value.
	assert.True(t, delta.IsZero(), "delta %s", delta)
	assert.True(t, next.Quantity.Equal(old.Quantity))
	assert.True(t, next.AveragePrice.Equal(old.AveragePrice))
}

func TestCascadeRatioScalesWithPositionValue(t *testing.T) {
	old := model.Position{Quantity: dec("10"), AveragePrice: dec("2500")}

	// Halving the position must halve cascaded amounts, never inflate them.
	halved, _ := applyPatch(old, PositionPatch{Quantity: decPtr("5")})
	ratio := cascadeRatio(old, halved)
	assert.True(t, ratio.Equal(dec("0.5")), "ratio %s", ratio)

	grown, _ := applyPatch(old, PositionPatch{Quantity: decPtr("12")})
	ratio = cascadeRatio(old, grown)
	assert.True(t, ratio.Equal(dec("1.2")), "ratio %s", ratio)

	// Sign changes scale by absolute value.
	flipped, _ := applyPatch(old, PositionPatch{Quantity: decPtr("-10")})
	ratio = cascadeRatio(old, flipped)
	assert.True(t, ratio.Equal(dec("1")), "ratio %s", ratio)

	// A zero-value history has nothing to scale from.
	empty := model.Position{}
	ratio = cascadeRatio(empty, old)
	assert.True(t, ratio.IsZero(), "ratio %s", ratio)
}

func TestApplyPatchStopLossAndTarget(t *testing.T) {
	old := model.Position{Quantity: dec("10"), AveragePrice: dec("2500")}
	next, _ := applyPatch(old, PositionPatch{StopLoss: decPtr("2450"), Target: decPtr("2650")})
	assert.NotNil(t, next.StopLoss)
	assert.True(t, next.StopLoss.Equal(dec("2450")))
	assert.NotNil(t, next.Target)
	assert.True(t, next.Target.Equal(dec("2650")))
}
