package positions

import (
	"context"
	"fmt"

	"paperbroker/internal/funds"
	"paperbroker/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Service applies executed fills to positions and performs the settlement
// side effects (margin release, realized P&L) that must land in the same
// database transaction as the order's state transition.
type Service struct {
	store *Store
	funds *funds.Service
}

func NewService(store *Store, fundsSvc *funds.Service) *Service {
	return &Service{store: store, funds: fundsSvc}
}

func (s *Service) Store() *Store {
	return s.store
}

// ApplyExecutedFill folds an executed order into the open position for its
// (user, instrument, product) triple. marginForFill is the margin blocked
// for the opening portion of the order; it moves onto the position row so
// a later reduce can release it proportionally.
func (s *Service) ApplyExecutedFill(ctx context.Context, tx pgx.Tx, accountID string, o model.Order, fillPrice, marginForFill decimal.Decimal) (model.Position, decimal.Decimal, error) {
	pos, found, err := s.store.GetOpenForUpdate(ctx, tx, o.UserID, o.InstrumentID, o.Product)
	if err != nil {
		return model.Position{}, decimal.Zero, err
	}

	if !found {
		res := ApplyFill(decimal.Zero, decimal.Zero, o.Side, o.FilledQuantity, fillPrice)
		created, err := s.store.Create(ctx, tx, model.Position{
			UserID:        o.UserID,
			InstrumentID:  o.InstrumentID,
			Symbol:        o.Symbol,
			Segment:       o.Segment,
			Product:       o.Product,
			Quantity:      res.Quantity,
			AveragePrice:  res.AveragePrice,
			MarginBlocked: marginForFill,
		})
		return created, decimal.Zero, err
	}

	res := ApplyFill(pos.Quantity, pos.AveragePrice, o.Side, o.FilledQuantity, fillPrice)

	released := decimal.Zero
	if res.ClosedQuantity.IsPositive() {
		frac := res.ClosedQuantity.Div(pos.Quantity.Abs())
		released = pos.MarginBlocked.Mul(frac)
		if released.IsPositive() {
			if err := s.funds.ReleaseMargin(ctx, tx, accountID, released, "margin released ("+o.Symbol+" position reduced)", o.ID); err != nil {
				return pos, decimal.Zero, fmt.Errorf("release margin: %w", err)
			}
		}
		if err := s.funds.SettlePnL(ctx, tx, accountID, res.RealizedPnL, "realized p&l "+o.Symbol, pos.ID); err != nil {
			return pos, decimal.Zero, fmt.Errorf("settle p&l: %w", err)
		}
	}

	if res.Flipped {
		// Close out the old row entirely, then open the residual as a
		// fresh position so the flip is explicit in history.
		if err := s.store.UpdateFill(ctx, tx, pos.ID, decimal.Zero, pos.AveragePrice, decimal.Zero, pos.RealizedPnL.Add(res.RealizedPnL)); err != nil {
			return pos, decimal.Zero, err
		}
		created, err := s.store.Create(ctx, tx, model.Position{
			UserID:        o.UserID,
			InstrumentID:  o.InstrumentID,
			Symbol:        o.Symbol,
			Segment:       o.Segment,
			Product:       o.Product,
			Quantity:      res.Quantity,
			AveragePrice:  res.AveragePrice,
			MarginBlocked: marginForFill,
		})
		return created, res.RealizedPnL, err
	}

	newMargin := pos.MarginBlocked.Sub(released).Add(marginForFill)
	if res.Quantity.IsZero() {
		newMargin = decimal.Zero
	}
	if err := s.store.UpdateFill(ctx, tx, pos.ID, res.Quantity, res.AveragePrice, newMargin, pos.RealizedPnL.Add(res.RealizedPnL)); err != nil {
		return pos, decimal.Zero, err
	}
	pos.Quantity = res.Quantity
	pos.AveragePrice = res.AveragePrice
	pos.MarginBlocked = newMargin
	pos.RealizedPnL = pos.RealizedPnL.Add(res.RealizedPnL)
	return pos, res.RealizedPnL, nil
}
