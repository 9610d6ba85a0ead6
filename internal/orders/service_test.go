package orders

import (
	"context"
	"testing"

	"paperbroker/internal/charges"
	"paperbroker/internal/model"
	"paperbroker/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	released []decimal.Decimal
	blocked  []decimal.Decimal
	consumed []decimal.Decimal
}

func (f *fakeLedger) EnsureAccount(context.Context, pgx.Tx, string) (model.TradingAccount, error) {
	return model.TradingAccount{ID: "acc-1"}, nil
}

func (f *fakeLedger) BlockMargin(_ context.Context, _ pgx.Tx, _ string, amount decimal.Decimal, _, _ string) error {
	f.blocked = append(f.blocked, amount)
	return nil
}

func (f *fakeLedger) ReleaseMargin(_ context.Context, _ pgx.Tx, _ string, amount decimal.Decimal, _, _ string) error {
	f.released = append(f.released, amount)
	return nil
}

func (f *fakeLedger) ConsumeMargin(_ context.Context, _ pgx.Tx, _ string, amount decimal.Decimal, _, _ string) error {
	f.consumed = append(f.consumed, amount)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestResolveFillPriceFallbackChain(t *testing.T) {
	inst := model.Instrument{LastTradedPrice: decPtr("2490")}

	// An average price already on the order wins.
	p, err := resolveFillPrice(model.Order{AveragePrice: decPtr("2510"), Price: decPtr("2500")}, inst)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("2510")))

	// Then the limit price.
	p, err = resolveFillPrice(model.Order{Price: decPtr("2500")}, inst)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("2500")))

	// Then the instrument's last traded price.
	p, err = resolveFillPrice(model.Order{}, inst)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("2490")))
}

func TestResolveFillPriceNeverFabricates(t *testing.T) {
	_, err := resolveFillPrice(model.Order{Symbol: "RELIANCE"}, model.Instrument{})
	assert.ErrorIs(t, err, ErrUnfillable)

	// Zero and negative prices are as unusable as missing ones.
	_, err = resolveFillPrice(model.Order{Price: decPtr("0")}, model.Instrument{LastTradedPrice: decPtr("-1")})
	assert.ErrorIs(t, err, ErrUnfillable)
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := &Service{}
	base := PlaceOrderRequest{
		UserID:       "u1",
		InstrumentID: "i1",
		Product:      types.ProductIntraday,
		Side:         types.OrderSideBuy,
		Type:         types.OrderTypeMarket,
		Quantity:     dec("10"),
	}

	cases := []struct {
		name   string
		mutate func(*PlaceOrderRequest)
	}{
		{"missing user", func(r *PlaceOrderRequest) { r.UserID = "" }},
		{"bad side", func(r *PlaceOrderRequest) { r.Side = "HOLD" }},
		{"bad type", func(r *PlaceOrderRequest) { r.Type = "STOP" }},
		{"bad product", func(r *PlaceOrderRequest) { r.Product = "NRML" }},
		{"zero quantity", func(r *PlaceOrderRequest) { r.Quantity = decimal.Zero }},
		{"negative quantity", func(r *PlaceOrderRequest) { r.Quantity = dec("-1") }},
		{"limit without price", func(r *PlaceOrderRequest) { r.Type = types.OrderTypeLimit }},
		{"limit with zero price", func(r *PlaceOrderRequest) {
			r.Type = types.OrderTypeLimit
			r.Price = decPtr("0")
		}},
		{"market with price", func(r *PlaceOrderRequest) { r.Price = decPtr("2500") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := svc.PlaceOrder(context.Background(), req)
			var verr ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestReleaseBlockedRestoresMarginAndCharges(t *testing.T) {
	fake := &fakeLedger{}
	svc := &Service{funds: fake}

	// Cancel and reject both flow through releaseBlocked; the amount must
	// be the persisted block, margin plus charges, byte for byte.
	o := model.Order{
		ID:             "o1",
		UserID:         "u1",
		Symbol:         "RELIANCE",
		MarginBlocked:  dec("125"),
		ChargesBlocked: dec("16.7125"),
	}
	require.NoError(t, svc.releaseBlocked(context.Background(), nil, o, "margin released"))
	require.Len(t, fake.released, 1)
	assert.True(t, fake.released[0].Equal(dec("141.7125")), "released %s", fake.released[0])

	// Nothing blocked, nothing released, no spurious zero-amount ledger row.
	empty := model.Order{ID: "o2", UserID: "u1"}
	require.NoError(t, svc.releaseBlocked(context.Background(), nil, empty, "margin released"))
	assert.Len(t, fake.released, 1)
}

func TestAdjustBlockDirectionality(t *testing.T) {
	fake := &fakeLedger{}
	svc := &Service{funds: fake}
	ctx := context.Background()

	require.NoError(t, svc.adjustBlock(ctx, nil, "acc-1", dec("10"), "d", "r"))
	require.NoError(t, svc.adjustBlock(ctx, nil, "acc-1", dec("-4"), "d", "r"))
	require.NoError(t, svc.adjustBlock(ctx, nil, "acc-1", decimal.Zero, "d", "r"))

	require.Len(t, fake.blocked, 1)
	assert.True(t, fake.blocked[0].Equal(dec("10")))
	require.Len(t, fake.released, 1)
	assert.True(t, fake.released[0].Equal(dec("4")))
}

func TestOffsetAgainst(t *testing.T) {
	cases := []struct {
		name    string
		openQty string
		side    types.OrderSide
		qty     string
		want    string
	}{
		{"sell fully inside long", "10", types.OrderSideSell, "5", "5"},
		{"sell beyond long caps at open", "10", types.OrderSideSell, "15", "10"},
		{"buy against long adds, no offset", "10", types.OrderSideBuy, "5", "0"},
		{"buy reduces short", "-10", types.OrderSideBuy, "4", "4"},
		{"sell against short adds, no offset", "-10", types.OrderSideSell, "4", "0"},
		{"closed position offsets nothing", "0", types.OrderSideSell, "10", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := offsetAgainst(dec(tc.openQty), tc.side, dec(tc.qty))
			assert.True(t, got.Equal(dec(tc.want)), "offset %s", got)
		})
	}
}

func TestMarginRecomputedWhenPositionGoneByExecution(t *testing.T) {
	cfg := charges.DefaultRiskConfig()

	// A sell sized as a full offset against a 10-long blocked no margin at
	// placement. If the long is already closed when the order executes,
	// the recomputed offset is zero and the whole quantity margins as a
	// fresh open, exactly as a de novo placement would.
	offset := offsetAgainst(decimal.Zero, types.OrderSideSell, dec("10"))
	require.True(t, offset.IsZero())

	atFill := charges.Calculate(cfg, charges.Input{
		Segment:        types.SegmentNSE,
		Product:        types.ProductIntraday,
		Quantity:       dec("10"),
		Price:          dec("2500"),
		OffsetQuantity: offset,
	}).MarginRequired
	assert.True(t, atFill.Equal(dec("125")), "margin %s", atFill)

	// With the long still open, the waiver stands at execution too.
	stillOpen := offsetAgainst(dec("10"), types.OrderSideSell, dec("10"))
	waived := charges.Calculate(cfg, charges.Input{
		Segment:        types.SegmentNSE,
		Product:        types.ProductIntraday,
		Quantity:       dec("10"),
		Price:          dec("2500"),
		OffsetQuantity: stillOpen,
	}).MarginRequired
	assert.True(t, waived.IsZero(), "margin %s", waived)
}

func TestOppositeSide(t *testing.T) {
	assert.Equal(t, types.OrderSideSell, types.OrderSideBuy.Opposite())
	assert.Equal(t, types.OrderSideBuy, types.OrderSideSell.Opposite())
}
