package positions

import (
	"paperbroker/internal/types"

	"github.com/shopspring/decimal"
)

// FillResult is the outcome of folding one executed fill into a position.
// Quantity is the resulting signed quantity (positive long, negative
// short). ClosedQuantity is the absolute quantity netted against the prior
// position; OpenedQuantity is the absolute quantity opening fresh exposure.
type FillResult struct {
	Quantity       decimal.Decimal
	AveragePrice   decimal.Decimal
	RealizedPnL    decimal.Decimal
	ClosedQuantity decimal.Decimal
	OpenedQuantity decimal.Decimal
	Flipped        bool
}

// ApplyFill computes the position mutation for a fill. Pure function; the
// caller persists the result and applies the settlement side effects.
//
// Cases: open when flat, add in the same direction (volume-weighted average
// price), partial reduce (average unchanged, P&L realized on the reduced
// portion), full close, and flip. A fill exceeding the open quantity
// closes the whole position and opens the residual in the other direction
// at the fill price.
func ApplyFill(oldQty, oldAvg decimal.Decimal, side types.OrderSide, fillQty, fillPrice decimal.Decimal) FillResult {
	signed := fillQty
	if side == types.OrderSideSell {
		signed = fillQty.Neg()
	}

	// Flat, or adding in the same direction.
	if oldQty.IsZero() || oldQty.Sign() == signed.Sign() {
		newQty := oldQty.Add(signed)
		oldAbs := oldQty.Abs()
		newAvg := fillPrice
		if !oldQty.IsZero() {
			newAvg = oldAbs.Mul(oldAvg).Add(fillQty.Mul(fillPrice)).Div(oldAbs.Add(fillQty))
		}
		return FillResult{
			Quantity:       newQty,
			AveragePrice:   newAvg,
			RealizedPnL:    decimal.Zero,
			ClosedQuantity: decimal.Zero,
			OpenedQuantity: fillQty,
		}
	}

	oldAbs := oldQty.Abs()
	closed := fillQty
	if closed.GreaterThan(oldAbs) {
		closed = oldAbs
	}
	// For a long, selling above average realizes a profit; the sign flips
	// for a short.
	direction := decimal.NewFromInt(int64(oldQty.Sign()))
	realized := closed.Mul(fillPrice.Sub(oldAvg)).Mul(direction)

	newQty := oldQty.Add(signed)
	if newQty.IsZero() {
		return FillResult{
			Quantity:       decimal.Zero,
			AveragePrice:   oldAvg,
			RealizedPnL:    realized,
			ClosedQuantity: closed,
			OpenedQuantity: decimal.Zero,
		}
	}
	if newQty.Sign() == oldQty.Sign() {
		// Partial reduce: cost basis of the remainder is untouched.
		return FillResult{
			Quantity:       newQty,
			AveragePrice:   oldAvg,
			RealizedPnL:    realized,
			ClosedQuantity: closed,
			OpenedQuantity: decimal.Zero,
		}
	}
	// Flip: the old position is fully closed and the residual opens a
	// fresh position in the fill's direction at the fill price.
	return FillResult{
		Quantity:       newQty,
		AveragePrice:   fillPrice,
		RealizedPnL:    realized,
		ClosedQuantity: closed,
		OpenedQuantity: fillQty.Sub(closed),
		Flipped:        true,
	}
}

// UnrealizedPnL marks an open position against a price. Signed quantity
// makes the formula side-agnostic.
func UnrealizedPnL(quantity, averagePrice, mark decimal.Decimal) decimal.Decimal {
	return quantity.Mul(mark.Sub(averagePrice))
}
