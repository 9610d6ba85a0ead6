package orders

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

var ErrOrderNotFound = errors.New("order not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const orderColumns = `id, user_id, instrument_id, symbol, segment, product, side, type, status,
	quantity, price, filled_quantity, average_price, quote_price, margin_blocked, charges_blocked,
	execute_after, created_at, executed_at`

func (s *Store) Create(ctx context.Context, tx pgx.Tx, o model.Order) (model.Order, error) {
	now := time.Now().UTC()
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, instrument_id, symbol, segment, product, side, type, status,
			quantity, price, filled_quantity, average_price, quote_price, margin_blocked, charges_blocked,
			execute_after, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,NULL,$11,$12,$13,$14,$15,$15)
		RETURNING id, created_at
	`, o.UserID, o.InstrumentID, o.Symbol, string(o.Segment), string(o.Product), string(o.Side), string(o.Type),
		string(o.Status), o.Quantity, o.Price, o.QuotePrice, o.MarginBlocked, o.ChargesBlocked,
		o.ExecuteAfter, now).Scan(&o.ID, &o.CreatedAt)
	return o, err
}

func (s *Store) GetByID(ctx context.Context, id string) (model.Order, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	return scanOrder(row)
}

func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Order, error) {
	row := tx.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	return scanOrder(row)
}

// ListDue returns PENDING orders whose scheduled execution time has
// elapsed, oldest first. Called outside any transaction; each order is
// then claimed individually.
func (s *Store) ListDue(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, "SELECT "+orderColumns+` FROM orders
		WHERE status = $1 AND execute_after <= $2
		ORDER BY created_at ASC
		LIMIT $3`, string(types.OrderStatusPending), time.Now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListByUser(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, "SELECT "+orderColumns+` FROM orders
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`, userID, string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ClaimExecuted is the compare-and-swap that makes execution exactly-once:
// the transition only succeeds if the row is still PENDING, so a second
// worker (or a racing cancel) matches zero rows and backs off.
func (s *Store) ClaimExecuted(ctx context.Context, tx pgx.Tx, id string, fillPrice, filledQty decimal.Decimal) (bool, error) {
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, average_price = $2, filled_quantity = $3, executed_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6
	`, string(types.OrderStatusExecuted), fillPrice, filledQty, now, id, string(types.OrderStatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkCancelled(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	return s.transition(ctx, tx, id, types.OrderStatusCancelled)
}

func (s *Store) MarkRejected(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	return s.transition(ctx, tx, id, types.OrderStatusRejected)
}

func (s *Store) transition(ctx context.Context, tx pgx.Tx, id string, to types.OrderStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(to), time.Now().UTC(), id, string(types.OrderStatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var segment, product, side, typ, status string
	err := row.Scan(&o.ID, &o.UserID, &o.InstrumentID, &o.Symbol, &segment, &product, &side, &typ, &status,
		&o.Quantity, &o.Price, &o.FilledQuantity, &o.AveragePrice, &o.QuotePrice, &o.MarginBlocked,
		&o.ChargesBlocked, &o.ExecuteAfter, &o.CreatedAt, &o.ExecutedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrOrderNotFound
	}
	o.Segment = types.Segment(segment)
	o.Product = types.ProductType(product)
	o.Side = types.OrderSide(side)
	o.Type = types.OrderType(typ)
	o.Status = types.OrderStatus(status)
	return o, err
}
