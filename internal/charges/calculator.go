package charges

import (
	"context"
	"errors"

	"paperbroker/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RiskConfig holds the leverage divisors and charge rates used by the
// calculator. Values come from the risk_config table so they can change
// without a deploy; the compiled defaults apply when the row is absent.
type RiskConfig struct {
	IntradayEquityLeverage decimal.Decimal
	DeliveryEquityLeverage decimal.Decimal
	DerivativeLeverage     decimal.Decimal
	BrokerageFlatCap       decimal.Decimal
	BrokerageRate          decimal.Decimal
	DerivativeFlatFee      decimal.Decimal
	STTRate                decimal.Decimal
	StampDutyRate          decimal.Decimal
	ExchangeTxnRate        decimal.Decimal
	GSTRate                decimal.Decimal
}

var defaultRiskConfig = RiskConfig{
	IntradayEquityLeverage: decimal.NewFromInt(200),
	DeliveryEquityLeverage: decimal.NewFromInt(50),
	DerivativeLeverage:     decimal.NewFromInt(100),
	BrokerageFlatCap:       decimal.NewFromInt(20),
	BrokerageRate:          decimal.RequireFromString("0.0003"),
	DerivativeFlatFee:      decimal.NewFromInt(20),
	STTRate:                decimal.RequireFromString("0.00025"),
	StampDutyRate:          decimal.RequireFromString("0.00003"),
	ExchangeTxnRate:        decimal.RequireFromString("0.0000345"),
	GSTRate:                decimal.RequireFromString("0.18"),
}

func DefaultRiskConfig() RiskConfig {
	return defaultRiskConfig
}

// LoadRiskConfig reads the live risk configuration. The same loaded values
// back both the pre-trade quote and the amount charged at placement, so the
// two can never disagree within one request.
func LoadRiskConfig(ctx context.Context, pool *pgxpool.Pool) (RiskConfig, error) {
	cfg := defaultRiskConfig
	var (
		intraday, delivery, derivative string
		flatCap, rate, derivFee        string
		stt, stamp, exchange, gst      string
	)
	err := pool.QueryRow(ctx, `
		SELECT intraday_equity_leverage, delivery_equity_leverage, derivative_leverage,
		       brokerage_flat_cap, brokerage_rate, derivative_flat_fee,
		       stt_rate, stamp_duty_rate, exchange_txn_rate, gst_rate
		FROM risk_config
		WHERE id = 1
	`).Scan(&intraday, &delivery, &derivative, &flatCap, &rate, &derivFee, &stt, &stamp, &exchange, &gst)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cfg, nil
		}
		return cfg, err
	}
	assign := func(dst *decimal.Decimal, raw string) {
		if v, err := decimal.NewFromString(raw); err == nil && v.GreaterThan(decimal.Zero) {
			*dst = v
		}
	}
	assign(&cfg.IntradayEquityLeverage, intraday)
	assign(&cfg.DeliveryEquityLeverage, delivery)
	assign(&cfg.DerivativeLeverage, derivative)
	assign(&cfg.BrokerageFlatCap, flatCap)
	assign(&cfg.BrokerageRate, rate)
	assign(&cfg.DerivativeFlatFee, derivFee)
	assign(&cfg.STTRate, stt)
	assign(&cfg.StampDutyRate, stamp)
	assign(&cfg.ExchangeTxnRate, exchange)
	assign(&cfg.GSTRate, gst)
	return cfg, nil
}

// Input describes one order for costing. Quantity is in underlying units
// (lots already resolved through the lot size). OffsetQuantity is the part
// of the order that reduces an existing opposite position; it incurs
// brokerage and statutory charges but blocks no fresh margin.
type Input struct {
	Segment        types.Segment
	Product        types.ProductType
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	OffsetQuantity decimal.Decimal
}

type Quote struct {
	OrderValue     decimal.Decimal `json:"order_value"`
	MarginRequired decimal.Decimal `json:"margin_required"`
	Brokerage      decimal.Decimal `json:"brokerage"`
	OtherCharges   decimal.Decimal `json:"other_charges"`
	TotalCost      decimal.Decimal `json:"total_cost"`
}

// Calculate prices an order. Pure: no I/O, no clock. The backend and the
// pre-trade quote call this with the same RiskConfig so quoted and charged
// amounts are bit-identical.
func Calculate(cfg RiskConfig, in Input) Quote {
	orderValue := in.Quantity.Mul(in.Price)
	marginQty := in.Quantity.Sub(in.OffsetQuantity)
	if marginQty.IsNegative() {
		marginQty = decimal.Zero
	}
	marginValue := marginQty.Mul(in.Price)
	margin := marginValue.Div(LeverageDivisor(cfg, in.Segment, in.Product))
	brokerage := Brokerage(cfg, in.Segment, orderValue)
	other := StatutoryCharges(cfg, orderValue, brokerage)
	return Quote{
		OrderValue:     orderValue,
		MarginRequired: margin,
		Brokerage:      brokerage,
		OtherCharges:   other,
		TotalCost:      margin.Add(brokerage).Add(other),
	}
}

// LeverageDivisor maps (segment, product) to the divisor applied to order
// value when computing the margin requirement.
func LeverageDivisor(cfg RiskConfig, segment types.Segment, product types.ProductType) decimal.Decimal {
	if segment == types.SegmentNFO {
		return cfg.DerivativeLeverage
	}
	if product == types.ProductIntraday {
		return cfg.IntradayEquityLeverage
	}
	return cfg.DeliveryEquityLeverage
}

// Brokerage is the lesser of the flat per-order cap and a percentage of
// order value for equity segments; derivative segments pay a flat fee.
func Brokerage(cfg RiskConfig, segment types.Segment, orderValue decimal.Decimal) decimal.Decimal {
	if segment == types.SegmentNFO {
		return cfg.DerivativeFlatFee
	}
	pct := orderValue.Mul(cfg.BrokerageRate)
	if pct.LessThan(cfg.BrokerageFlatCap) {
		return pct
	}
	return cfg.BrokerageFlatCap
}

// StatutoryCharges aggregates STT, stamp duty, exchange turnover fee and
// GST on brokerage.
func StatutoryCharges(cfg RiskConfig, orderValue, brokerage decimal.Decimal) decimal.Decimal {
	stt := orderValue.Mul(cfg.STTRate)
	stamp := orderValue.Mul(cfg.StampDutyRate)
	exchange := orderValue.Mul(cfg.ExchangeTxnRate)
	gst := brokerage.Mul(cfg.GSTRate)
	return stt.Add(stamp).Add(exchange).Add(gst)
}

// Fees returns brokerage plus statutory charges for an order value, used at
// settlement where the fill price is known exactly.
func Fees(cfg RiskConfig, segment types.Segment, orderValue decimal.Decimal) decimal.Decimal {
	brokerage := Brokerage(cfg, segment, orderValue)
	return brokerage.Add(StatutoryCharges(cfg, orderValue, brokerage))
}
