package positions

import (
	"context"
	"errors"
	"time"

	"paperbroker/internal/model"
	"paperbroker/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrPositionNotFound = errors.New("position not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const positionColumns = `id, user_id, instrument_id, symbol, segment, product, quantity, average_price,
	margin_blocked, stop_loss, target, unrealized_pnl, day_pnl, realized_pnl, created_at, updated_at`

func (s *Store) GetByID(ctx context.Context, id string) (model.Position, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+positionColumns+" FROM positions WHERE id = $1", id)
	return scanPosition(row)
}

func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Position, error) {
	row := tx.QueryRow(ctx, "SELECT "+positionColumns+" FROM positions WHERE id = $1 FOR UPDATE", id)
	return scanPosition(row)
}

// GetOpenForUpdate locks the open position for one (user, instrument,
// product) triple. Closed rows (quantity zero) are history and never
// match; a new fill after a full close starts a fresh row.
func (s *Store) GetOpenForUpdate(ctx context.Context, tx pgx.Tx, userID, instrumentID string, product types.ProductType) (model.Position, bool, error) {
	row := tx.QueryRow(ctx, "SELECT "+positionColumns+` FROM positions
		WHERE user_id = $1 AND instrument_id = $2 AND product = $3 AND quantity <> 0
		FOR UPDATE`, userID, instrumentID, string(product))
	pos, err := scanPosition(row)
	if errors.Is(err, ErrPositionNotFound) {
		return pos, false, nil
	}
	return pos, err == nil, err
}

// GetOpen is the non-locking read used at placement time to size the
// margin offset for orders that reduce an existing position.
func (s *Store) GetOpen(ctx context.Context, userID, instrumentID string, product types.ProductType) (model.Position, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+positionColumns+` FROM positions
		WHERE user_id = $1 AND instrument_id = $2 AND product = $3 AND quantity <> 0`,
		userID, instrumentID, string(product))
	pos, err := scanPosition(row)
	if errors.Is(err, ErrPositionNotFound) {
		return pos, false, nil
	}
	return pos, err == nil, err
}

func (s *Store) Create(ctx context.Context, tx pgx.Tx, p model.Position) (model.Position, error) {
	now := time.Now().UTC()
	err := tx.QueryRow(ctx, `
		INSERT INTO positions (user_id, instrument_id, symbol, segment, product, quantity, average_price,
			margin_blocked, stop_loss, target, unrealized_pnl, day_pnl, realized_pnl, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,0,$11,$12,$12)
		RETURNING id, created_at, updated_at
	`, p.UserID, p.InstrumentID, p.Symbol, string(p.Segment), string(p.Product), p.Quantity, p.AveragePrice,
		p.MarginBlocked, p.StopLoss, p.Target, p.RealizedPnL, now).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// UpdateFill persists the settlement-relevant fields after a fill.
func (s *Store) UpdateFill(ctx context.Context, tx pgx.Tx, id string, quantity, averagePrice, marginBlocked, realizedPnL decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE positions
		SET quantity = $1, average_price = $2, margin_blocked = $3, realized_pnl = $4, updated_at = $5
		WHERE id = $6
	`, quantity, averagePrice, marginBlocked, realizedPnL, time.Now().UTC(), id)
	return err
}

// UpdatePnL refreshes the display-oriented P&L fields and nothing else.
// The mark-to-market worker goes through here, so it cannot touch
// quantity, cost basis, margin or balances.
func (s *Store) UpdatePnL(ctx context.Context, id string, unrealized, day decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET unrealized_pnl = $1, day_pnl = $2, updated_at = $3
		WHERE id = $4
	`, unrealized, day, time.Now().UTC(), id)
	return err
}

func (s *Store) ListOpen(ctx context.Context, limit int) ([]model.Position, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, "SELECT "+positionColumns+` FROM positions
		WHERE quantity <> 0
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func (s *Store) ListByUser(ctx context.Context, userID string, openOnly bool) ([]model.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE user_id = $1"
	if openOnly {
		query += " AND quantity <> 0"
	}
	query += " ORDER BY created_at DESC LIMIT 200"
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var segment, product string
	err := row.Scan(&p.ID, &p.UserID, &p.InstrumentID, &p.Symbol, &segment, &product, &p.Quantity, &p.AveragePrice,
		&p.MarginBlocked, &p.StopLoss, &p.Target, &p.UnrealizedPnL, &p.DayPnL, &p.RealizedPnL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrPositionNotFound
	}
	p.Segment = types.Segment(segment)
	p.Product = types.ProductType(product)
	return p, err
}
