package charges

import (
	"testing"

	"paperbroker/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateIntradayEquity(t *testing.T) {
	q := Calculate(DefaultRiskConfig(), Input{
		Segment:  types.SegmentNSE,
		Product:  types.ProductIntraday,
		Quantity: dec("10"),
		Price:    dec("2500"),
	})

	// 10 * 2500 at 200x leverage: margin 125, brokerage 0.03% = 7.5
	// (under the 20 cap), statutory 6.25 + 0.75 + 0.8625 + GST 1.35.
	assert.True(t, q.OrderValue.Equal(dec("25000")), "order value %s", q.OrderValue)
	assert.True(t, q.MarginRequired.Equal(dec("125")), "margin %s", q.MarginRequired)
	assert.True(t, q.Brokerage.Equal(dec("7.5")), "brokerage %s", q.Brokerage)
	assert.True(t, q.OtherCharges.Equal(dec("9.2125")), "other charges %s", q.OtherCharges)
	assert.True(t, q.TotalCost.Equal(dec("141.7125")), "total cost %s", q.TotalCost)
}

func TestCalculateDeliveryUsesSmallerLeverage(t *testing.T) {
	q := Calculate(DefaultRiskConfig(), Input{
		Segment:  types.SegmentNSE,
		Product:  types.ProductDelivery,
		Quantity: dec("10"),
		Price:    dec("2500"),
	})
	assert.True(t, q.MarginRequired.Equal(dec("500")), "margin %s", q.MarginRequired)
}

func TestBrokerageCap(t *testing.T) {
	cfg := DefaultRiskConfig()

	// 0.03% of 66,666.67 is ~20; above that the cap wins.
	under := Brokerage(cfg, types.SegmentNSE, dec("50000"))
	assert.True(t, under.Equal(dec("15")), "brokerage %s", under)

	over := Brokerage(cfg, types.SegmentNSE, dec("100000"))
	assert.True(t, over.Equal(dec("20")), "brokerage %s", over)
}

func TestDerivativeFlatFee(t *testing.T) {
	cfg := DefaultRiskConfig()
	q := Calculate(cfg, Input{
		Segment:  types.SegmentNFO,
		Product:  types.ProductIntraday,
		Quantity: dec("50"),
		Price:    dec("200"),
	})
	assert.True(t, q.Brokerage.Equal(cfg.DerivativeFlatFee), "brokerage %s", q.Brokerage)
	assert.True(t, q.MarginRequired.Equal(dec("100")), "margin %s", q.MarginRequired)
}

func TestOffsetQuantityBlocksNoFreshMargin(t *testing.T) {
	cfg := DefaultRiskConfig()

	// Selling 10 against a 10-long: the whole order offsets, so no new
	// margin, but brokerage and statutory charges still apply in full.
	q := Calculate(cfg, Input{
		Segment:        types.SegmentNSE,
		Product:        types.ProductIntraday,
		Quantity:       dec("10"),
		Price:          dec("2500"),
		OffsetQuantity: dec("10"),
	})
	assert.True(t, q.MarginRequired.IsZero(), "margin %s", q.MarginRequired)
	assert.True(t, q.Brokerage.Equal(dec("7.5")), "brokerage %s", q.Brokerage)
	assert.True(t, q.TotalCost.Equal(dec("16.7125")), "total cost %s", q.TotalCost)

	// Partial offset margins only the opening remainder.
	partial := Calculate(cfg, Input{
		Segment:        types.SegmentNSE,
		Product:        types.ProductIntraday,
		Quantity:       dec("15"),
		Price:          dec("2500"),
		OffsetQuantity: dec("10"),
	})
	assert.True(t, partial.MarginRequired.Equal(dec("62.5")), "margin %s", partial.MarginRequired)

	// An offset larger than the order clamps to zero margin rather than
	// going negative.
	clamped := Calculate(cfg, Input{
		Segment:        types.SegmentNSE,
		Product:        types.ProductIntraday,
		Quantity:       dec("5"),
		Price:          dec("2500"),
		OffsetQuantity: dec("10"),
	})
	assert.True(t, clamped.MarginRequired.IsZero(), "margin %s", clamped.MarginRequired)
}

func TestFeesMatchesQuoteParts(t *testing.T) {
	cfg := DefaultRiskConfig()
	q := Calculate(cfg, Input{
		Segment:  types.SegmentNSE,
		Product:  types.ProductIntraday,
		Quantity: dec("10"),
		Price:    dec("2500"),
	})
	fees := Fees(cfg, types.SegmentNSE, q.OrderValue)
	require.True(t, fees.Equal(q.Brokerage.Add(q.OtherCharges)),
		"fees %s, quote parts %s", fees, q.Brokerage.Add(q.OtherCharges))
}
