package positions

import (
	"testing"

	"paperbroker/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyFillOpenWhenFlat(t *testing.T) {
	res := ApplyFill(decimal.Zero, decimal.Zero, types.OrderSideBuy, dec("10"), dec("2500"))
	assert.True(t, res.Quantity.Equal(dec("10")))
	assert.True(t, res.AveragePrice.Equal(dec("2500")))
	assert.True(t, res.RealizedPnL.IsZero())
	assert.True(t, res.ClosedQuantity.IsZero())
	assert.True(t, res.OpenedQuantity.Equal(dec("10")))
	assert.False(t, res.Flipped)

	short := ApplyFill(decimal.Zero, decimal.Zero, types.OrderSideSell, dec("10"), dec("2500"))
	assert.True(t, short.Quantity.Equal(dec("-10")))
	assert.True(t, short.AveragePrice.Equal(dec("2500")))
}

func TestApplyFillAddSameDirection(t *testing.T) {
	// 10 @ 2500 plus 5 @ 2600: volume-weighted average 38000/15.
	res := ApplyFill(dec("10"), dec("2500"), types.OrderSideBuy, dec("5"), dec("2600"))
	assert.True(t, res.Quantity.Equal(dec("15")))
	assert.True(t, res.AveragePrice.Sub(dec("2533.3333")).Abs().LessThan(dec("0.0001")),
		"average %s", res.AveragePrice)
	assert.True(t, res.RealizedPnL.IsZero())
	assert.False(t, res.Flipped)

	// Shorts average the same way.
	shorted := ApplyFill(dec("-10"), dec("2500"), types.OrderSideSell, dec("10"), dec("2400"))
	assert.True(t, shorted.Quantity.Equal(dec("-20")))
	assert.True(t, shorted.AveragePrice.Equal(dec("2450")), "average %s", shorted.AveragePrice)
}

func TestApplyFillPartialReduce(t *testing.T) {
	// Long 20 @ 2500, sell 8 @ 2650: realize 8 * 150, cost basis untouched.
	res := ApplyFill(dec("20"), dec("2500"), types.OrderSideSell, dec("8"), dec("2650"))
	assert.True(t, res.Quantity.Equal(dec("12")))
	assert.True(t, res.AveragePrice.Equal(dec("2500")))
	assert.True(t, res.RealizedPnL.Equal(dec("1200")), "realized %s", res.RealizedPnL)
	assert.True(t, res.ClosedQuantity.Equal(dec("8")))
	assert.False(t, res.Flipped)

	// Reducing a short below its average realizes a profit too.
	short := ApplyFill(dec("-20"), dec("2500"), types.OrderSideBuy, dec("8"), dec("2400"))
	assert.True(t, short.Quantity.Equal(dec("-12")))
	assert.True(t, short.RealizedPnL.Equal(dec("800")), "realized %s", short.RealizedPnL)
}

func TestApplyFillFullClose(t *testing.T) {
	res := ApplyFill(dec("10"), dec("2500"), types.OrderSideSell, dec("10"), dec("2450"))
	assert.True(t, res.Quantity.IsZero())
	assert.True(t, res.RealizedPnL.Equal(dec("-500")), "realized %s", res.RealizedPnL)
	assert.True(t, res.ClosedQuantity.Equal(dec("10")))
	assert.True(t, res.OpenedQuantity.IsZero())
	// Average retained for history.
	assert.True(t, res.AveragePrice.Equal(dec("2500")))
	assert.False(t, res.Flipped)
}

func TestApplyFillFlip(t *testing.T) {
	// Long 10 @ 2500, sell 15 @ 2600: close all 10 (realize 1000), open a
	// 5-short at the fill price.
	res := ApplyFill(dec("10"), dec("2500"), types.OrderSideSell, dec("15"), dec("2600"))
	assert.True(t, res.Flipped)
	assert.True(t, res.Quantity.Equal(dec("-5")), "quantity %s", res.Quantity)
	assert.True(t, res.AveragePrice.Equal(dec("2600")))
	assert.True(t, res.RealizedPnL.Equal(dec("1000")), "realized %s", res.RealizedPnL)
	assert.True(t, res.ClosedQuantity.Equal(dec("10")))
	assert.True(t, res.OpenedQuantity.Equal(dec("5")))

	// Short to long.
	rev := ApplyFill(dec("-10"), dec("2500"), types.OrderSideBuy, dec("25"), dec("2550"))
	assert.True(t, rev.Flipped)
	assert.True(t, rev.Quantity.Equal(dec("15")))
	assert.True(t, rev.AveragePrice.Equal(dec("2550")))
	assert.True(t, rev.RealizedPnL.Equal(dec("-500")), "realized %s", rev.RealizedPnL)
}

func TestUnrealizedPnLSignAdjusted(t *testing.T) {
	long := UnrealizedPnL(dec("10"), dec("2500"), dec("2550"))
	assert.True(t, long.Equal(dec("500")), "long %s", long)

	short := UnrealizedPnL(dec("-10"), dec("2500"), dec("2550"))
	assert.True(t, short.Equal(dec("-500")), "short %s", short)
}
