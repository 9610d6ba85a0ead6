package model

import (
	"time"

	"paperbroker/internal/types"

	"github.com/shopspring/decimal"
)

type Instrument struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Name            string           `json:"name"`
	Segment         types.Segment    `json:"segment"`
	LotSize         int64            `json:"lot_size"`
	LastTradedPrice *decimal.Decimal `json:"last_traded_price"`
	PreviousClose   *decimal.Decimal `json:"previous_close"`
	Tradable        bool             `json:"tradable"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type Order struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	InstrumentID   string            `json:"instrument_id"`
	Symbol         string            `json:"symbol"`
	Segment        types.Segment     `json:"segment"`
	Product        types.ProductType `json:"product"`
	Side           types.OrderSide   `json:"side"`
	Type           types.OrderType   `json:"type"`
	Status         types.OrderStatus `json:"status"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Price          *decimal.Decimal  `json:"price"`
	FilledQuantity decimal.Decimal   `json:"filled_quantity"`
	AveragePrice   *decimal.Decimal  `json:"average_price"`
	QuotePrice     decimal.Decimal   `json:"quote_price"`
	MarginBlocked  decimal.Decimal   `json:"margin_blocked"`
	ChargesBlocked decimal.Decimal   `json:"charges_blocked"`
	ExecuteAfter   time.Time         `json:"execute_after"`
	CreatedAt      time.Time         `json:"created_at"`
	ExecutedAt     *time.Time        `json:"executed_at"`
}

// Position aggregates executed orders per (user, instrument, product).
// Quantity is signed: positive long, negative short, zero closed.
type Position struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	InstrumentID  string            `json:"instrument_id"`
	Symbol        string            `json:"symbol"`
	Segment       types.Segment     `json:"segment"`
	Product       types.ProductType `json:"product"`
	Quantity      decimal.Decimal   `json:"quantity"`
	AveragePrice  decimal.Decimal   `json:"average_price"`
	MarginBlocked decimal.Decimal   `json:"margin_blocked"`
	StopLoss      *decimal.Decimal  `json:"stop_loss"`
	Target        *decimal.Decimal  `json:"target"`
	UnrealizedPnL decimal.Decimal   `json:"unrealized_pnl"`
	DayPnL        decimal.Decimal   `json:"day_pnl"`
	RealizedPnL   decimal.Decimal   `json:"realized_pnl"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type TradingAccount struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Balance         decimal.Decimal `json:"balance"`
	AvailableMargin decimal.Decimal `json:"available_margin"`
	UsedMargin      decimal.Decimal `json:"used_margin"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID          string                `json:"id"`
	AccountID   string                `json:"account_id"`
	Type        types.TransactionType `json:"type"`
	Amount      decimal.Decimal       `json:"amount"`
	Description string                `json:"description"`
	Ref         string                `json:"ref"`
	CreatedAt   time.Time             `json:"created_at"`
}
