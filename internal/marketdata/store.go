package marketdata

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

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrPriceUnavailable   = errors.New("price unavailable")
)

// Feed is the read side of the market-data boundary: the engine asks for a
// price and gets either one or an explicit ErrPriceUnavailable. It never
// fabricates a price.
type Feed interface {
	LastTradedPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)
	PreviousClose(ctx context.Context, instrumentID string) (decimal.Decimal, error)
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const instrumentColumns = "id, symbol, name, segment, lot_size, last_traded_price, previous_close, tradable, updated_at"

func (s *Store) GetByID(ctx context.Context, id string) (model.Instrument, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+instrumentColumns+" FROM instruments WHERE id = $1", id)
	return scanInstrument(row)
}

func (s *Store) GetBySymbol(ctx context.Context, segment types.Segment, symbol string) (model.Instrument, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+instrumentColumns+" FROM instruments WHERE segment = $1 AND symbol = $2", string(segment), symbol)
	return scanInstrument(row)
}

func (s *Store) List(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+instrumentColumns+" FROM instruments ORDER BY segment, symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpdateLTP records a tick pushed by the market-data subsystem.
func (s *Store) UpdateLTP(ctx context.Context, instrumentID string, ltp decimal.Decimal) (model.Instrument, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE instruments
		SET last_traded_price = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+instrumentColumns, ltp, time.Now().UTC(), instrumentID)
	return scanInstrument(row)
}

func (s *Store) LastTradedPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	inst, err := s.GetByID(ctx, instrumentID)
	if err != nil {
		return decimal.Zero, err
	}
	if inst.LastTradedPrice == nil || !inst.LastTradedPrice.GreaterThan(decimal.Zero) {
		return decimal.Zero, ErrPriceUnavailable
	}
	return *inst.LastTradedPrice, nil
}

func (s *Store) PreviousClose(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	inst, err := s.GetByID(ctx, instrumentID)
	if err != nil {
		return decimal.Zero, err
	}
	if inst.PreviousClose == nil || !inst.PreviousClose.GreaterThan(decimal.Zero) {
		return decimal.Zero, ErrPriceUnavailable
	}
	return *inst.PreviousClose, nil
}

func scanInstrument(row pgx.Row) (model.Instrument, error) {
	var inst model.Instrument
	var segment string
	err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &segment, &inst.LotSize, &inst.LastTradedPrice, &inst.PreviousClose, &inst.Tradable, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return inst, ErrInstrumentNotFound
	}
	inst.Segment = types.Segment(segment)
	return inst, err
}
