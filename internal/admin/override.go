package admin

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"paperbroker/internal/funds"
	"paperbroker/internal/model"
	"paperbroker/internal/positions"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Service is the privileged mutation path. Every override runs in one
// transaction, lands in admin_audit_log, and returns a summary of each
// side effect applied so the caller can audit exactly what changed.
type Service struct {
	pool     *pgxpool.Pool
	funds    *funds.Service
	posStore *positions.Store
}

func NewService(pool *pgxpool.Pool, fundsSvc *funds.Service, posStore *positions.Store) *Service {
	return &Service{pool: pool, funds: fundsSvc, posStore: posStore}
}

// PositionPatch carries explicit field overrides; nil means untouched.
type PositionPatch struct {
	Quantity      *decimal.Decimal `json:"quantity"`
	AveragePrice  *decimal.Decimal `json:"average_price"`
	Symbol        *string          `json:"symbol"`
	StopLoss      *decimal.Decimal `json:"stop_loss"`
	Target        *decimal.Decimal `json:"target"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl"`
	DayPnL        *decimal.Decimal `json:"day_pnl"`
	RealizedPnL   *decimal.Decimal `json:"realized_pnl"`

	// Opt-in side effects. Blanket cascade can corrupt unrelated history,
	// so each group is a separate flag.
	ManageFunds         bool `json:"manage_funds"`
	CascadeOrders       bool `json:"cascade_orders"`
	CascadeTransactions bool `json:"cascade_transactions"`
}

// OverrideResult reports the updated record and every side effect applied.
type OverrideResult struct {
	Position            model.Position  `json:"position"`
	ValueDelta          decimal.Decimal `json:"value_delta"`
	FundsAdjusted       bool            `json:"funds_adjusted"`
	OrdersCascaded      int64           `json:"orders_cascaded"`
	TransactionsScaled  int64           `json:"transactions_scaled"`
	TransactionsCreated int             `json:"transactions_created"`
}

// PatchPosition applies explicit field overrides to a position.
// valueDelta = newQuantity*newAveragePrice - oldQuantity*oldAveragePrice;
// with ManageFunds set, funds move by -valueDelta, mirroring what a real
// fill of the same change would have done, so the ledger invariant holds
// through manual corrections too.
func (s *Service) PatchPosition(ctx context.Context, adminID, positionID string, patch PositionPatch) (OverrideResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return OverrideResult{}, err
	}
	defer tx.Rollback(ctx)

	old, err := s.posStore.GetForUpdate(ctx, tx, positionID)
	if err != nil {
		return OverrideResult{}, err
	}

	next, valueDelta := applyPatch(old, patch)
	res := OverrideResult{ValueDelta: valueDelta}

	_, err = tx.Exec(ctx, `
		UPDATE positions
		SET quantity = $1, average_price = $2, symbol = $3, stop_loss = $4, target = $5,
		    unrealized_pnl = $6, day_pnl = $7, realized_pnl = $8, updated_at = $9
		WHERE id = $10
	`, next.Quantity, next.AveragePrice, next.Symbol, next.StopLoss, next.Target,
		next.UnrealizedPnL, next.DayPnL, next.RealizedPnL, time.Now().UTC(), next.ID)
	if err != nil {
		return res, err
	}

	if patch.ManageFunds && !valueDelta.IsZero() {
		acc, err := s.funds.EnsureAccount(ctx, tx, old.UserID)
		if err != nil {
			return res, err
		}
		if err := s.funds.AdjustBalance(ctx, tx, acc.ID, valueDelta.Neg(),
			"admin position override ("+next.Symbol+")", positionID); err != nil {
			return res, err
		}
		res.FundsAdjusted = true
		res.TransactionsCreated++
	}

	if patch.CascadeOrders {
		n, err := s.cascadeOrders(ctx, tx, old, next)
		if err != nil {
			return res, err
		}
		res.OrdersCascaded = n
	}

	if patch.CascadeTransactions {
		n, err := s.cascadeTransactions(ctx, tx, old, next)
		if err != nil {
			return res, err
		}
		res.TransactionsScaled = n
	}

	if err := s.audit(ctx, tx, adminID, "position_override", positionID, patch, res); err != nil {
		return res, err
	}

	next.UpdatedAt = time.Now().UTC()
	res.Position = next
	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// applyPatch merges explicit overrides into the position and returns the
// resulting value delta, newQuantity*newAveragePrice minus the old product.
func applyPatch(old model.Position, patch PositionPatch) (model.Position, decimal.Decimal) {
	next := old
	if patch.Quantity != nil {
		next.Quantity = *patch.Quantity
	}
	if patch.AveragePrice != nil {
		next.AveragePrice = *patch.AveragePrice
	}
	if patch.Symbol != nil {
		next.Symbol = *patch.Symbol
	}
	if patch.StopLoss != nil {
		next.StopLoss = patch.StopLoss
	}
	if patch.Target != nil {
		next.Target = patch.Target
	}
	if patch.UnrealizedPnL != nil {
		next.UnrealizedPnL = *patch.UnrealizedPnL
	}
	if patch.DayPnL != nil {
		next.DayPnL = *patch.DayPnL
	}
	if patch.RealizedPnL != nil {
		next.RealizedPnL = *patch.RealizedPnL
	}
	delta := next.Quantity.Mul(next.AveragePrice).Sub(old.Quantity.Mul(old.AveragePrice))
	return next, delta
}

// cascadeOrders rewrites the executed orders behind the position so order
// history matches the corrected quantity, price and symbol.
func (s *Service) cascadeOrders(ctx context.Context, tx pgx.Tx, old, next model.Position) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET quantity = $1, filled_quantity = $1, average_price = $2, symbol = $3, updated_at = $4
		WHERE user_id = $5 AND instrument_id = $6 AND product = $7 AND status = 'EXECUTED'
	`, next.Quantity.Abs(), next.AveragePrice, next.Symbol, time.Now().UTC(),
		old.UserID, old.InstrumentID, string(old.Product))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// cascadeRatio is the factor applied to ledger amounts when scaling them
// to a corrected position value: new absolute value over old. Zero when
// the old value is zero, since there is nothing to scale from.
func cascadeRatio(old, next model.Position) decimal.Decimal {
	oldValue := old.Quantity.Mul(old.AveragePrice).Abs()
	if oldValue.IsZero() {
		return decimal.Zero
	}
	return next.Quantity.Mul(next.AveragePrice).Abs().Div(oldValue)
}

// cascadeTransactions scales the ledger rows that reference the position's
// orders by the ratio of new to old position value, so statement history
// lines up with the corrected record. Positions with no prior value cannot
// be scaled.
func (s *Service) cascadeTransactions(ctx context.Context, tx pgx.Tx, old, next model.Position) (int64, error) {
	ratio := cascadeRatio(old, next)
	if ratio.IsZero() {
		return 0, nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET amount = amount * $1
		WHERE ref IN (
			SELECT id FROM orders
			WHERE user_id = $2 AND instrument_id = $3 AND product = $4
		)
	`, ratio, old.UserID, old.InstrumentID, string(old.Product))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FundAdjustment is a direct admin credit or debit on a user's account.
type FundAdjustment struct {
	UserID string          `json:"user_id"`
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason"`
}

func (s *Service) AdjustFunds(ctx context.Context, adminID string, adj FundAdjustment) (model.TradingAccount, error) {
	if adj.Delta.IsZero() {
		return model.TradingAccount{}, errors.New("delta must be non-zero")
	}
	if adj.Reason == "" {
		return model.TradingAccount{}, errors.New("reason is required")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.TradingAccount{}, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.funds.EnsureAccount(ctx, tx, adj.UserID)
	if err != nil {
		return acc, err
	}
	if err := s.funds.AdjustBalance(ctx, tx, acc.ID, adj.Delta, "admin adjustment: "+adj.Reason, uuid.NewString()); err != nil {
		return acc, err
	}
	if err := s.audit(ctx, tx, adminID, "fund_adjustment", acc.ID, adj, nil); err != nil {
		return acc, err
	}
	acc.Balance = acc.Balance.Add(adj.Delta)
	acc.AvailableMargin = acc.AvailableMargin.Add(adj.Delta)
	return acc, tx.Commit(ctx)
}

func (s *Service) audit(ctx context.Context, tx pgx.Tx, adminID, action, targetID string, request, result any) error {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return err
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO admin_audit_log (id, admin_id, action, target_id, request, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), adminID, action, targetID, reqJSON, resJSON, time.Now().UTC())
	return err
}
