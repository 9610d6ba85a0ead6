package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperbroker/internal/charges"
	"paperbroker/internal/funds"
	"paperbroker/internal/marketdata"
	"paperbroker/internal/model"
	"paperbroker/internal/positions"
	"paperbroker/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotPending marks a lost race on a state transition: the
	// order already left PENDING. Callers treat it as a no-op and
	// re-fetch, never as a failure.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrUnfillable marks execution failures that warrant REJECTED:
	// vanished instrument, no resolvable price, margin that cannot be
	// reconciled to the fill price.
	ErrUnfillable = errors.New("order cannot be filled")

	ErrInvalidInstrument = errors.New("invalid instrument")
	ErrPositionNotOpen   = errors.New("position is not open")
)

// ValidationError is a synchronous placement rejection; the order is never
// persisted.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return ValidationError{Msg: msg} }

// ledger is the funds surface the order paths drive. *funds.Service
// implements it; tests substitute a recorder.
type ledger interface {
	EnsureAccount(ctx context.Context, tx pgx.Tx, userID string) (model.TradingAccount, error)
	BlockMargin(ctx context.Context, tx pgx.Tx, accountID string, amount decimal.Decimal, desc, ref string) error
	ReleaseMargin(ctx context.Context, tx pgx.Tx, accountID string, amount decimal.Decimal, desc, ref string) error
	ConsumeMargin(ctx context.Context, tx pgx.Tx, accountID string, amount decimal.Decimal, desc, ref string) error
}

type Service struct {
	pool      *pgxpool.Pool
	store     *Store
	funds     ledger
	market    *marketdata.Store
	feed      marketdata.Feed
	positions *positions.Service
	posStore  *positions.Store

	executionDelay time.Duration
}

func NewService(pool *pgxpool.Pool, store *Store, fundsSvc *funds.Service, market *marketdata.Store, feed marketdata.Feed, posSvc *positions.Service, executionDelay time.Duration) *Service {
	return &Service{
		pool:           pool,
		store:          store,
		funds:          fundsSvc,
		market:         market,
		feed:           feed,
		positions:      posSvc,
		posStore:       posSvc.Store(),
		executionDelay: executionDelay,
	}
}

type PlaceOrderRequest struct {
	UserID       string
	InstrumentID string
	Symbol       string
	Segment      types.Segment
	Product      types.ProductType
	Side         types.OrderSide
	Type         types.OrderType
	Quantity     decimal.Decimal
	Price        *decimal.Decimal
}

type PlaceOrderResult struct {
	Order model.Order   `json:"order"`
	Quote charges.Quote `json:"quote"`
}

// PlaceOrder validates, prices and persists a PENDING order with its
// margin blocked. Everything that can reject synchronously happens here;
// once the order is PENDING, only the execution worker (or a cancel)
// moves it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	return s.placeOrder(ctx, req, s.executionDelay)
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest, delay time.Duration) (PlaceOrderResult, error) {
	if req.UserID == "" {
		return PlaceOrderResult{}, invalid("missing user")
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return PlaceOrderResult{}, invalid("invalid side")
	}
	if req.Type != types.OrderTypeMarket && req.Type != types.OrderTypeLimit {
		return PlaceOrderResult{}, invalid("invalid type")
	}
	if req.Product != types.ProductIntraday && req.Product != types.ProductDelivery {
		return PlaceOrderResult{}, invalid("invalid product")
	}
	if !req.Quantity.IsPositive() {
		return PlaceOrderResult{}, invalid("quantity must be positive")
	}
	if req.Type == types.OrderTypeLimit && (req.Price == nil || !req.Price.IsPositive()) {
		return PlaceOrderResult{}, invalid("price required for limit order")
	}
	if req.Type == types.OrderTypeMarket && req.Price != nil {
		return PlaceOrderResult{}, invalid("price not allowed for market order")
	}

	inst, err := s.resolveInstrument(ctx, req)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if !inst.Tradable {
		return PlaceOrderResult{}, ErrInvalidInstrument
	}

	cfg, err := charges.LoadRiskConfig(ctx, s.pool)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("load risk config: %w", err)
	}

	// The price backing the pre-trade quote: the limit price, or the
	// live LTP for market orders. Never a fabricated value.
	var quotePrice decimal.Decimal
	if req.Type == types.OrderTypeLimit {
		quotePrice = *req.Price
	} else {
		quotePrice, err = s.feed.LastTradedPrice(ctx, inst.ID)
		if err != nil {
			return PlaceOrderResult{}, err
		}
	}

	offset := s.offsetQuantity(ctx, req.UserID, inst.ID, req.Product, req.Side, req.Quantity)
	quote := charges.Calculate(cfg, charges.Input{
		Segment:        inst.Segment,
		Product:        req.Product,
		Quantity:       req.Quantity,
		Price:          quotePrice,
		OffsetQuantity: offset,
	})

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.funds.EnsureAccount(ctx, tx, req.UserID)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	order := model.Order{
		UserID:         req.UserID,
		InstrumentID:   inst.ID,
		Symbol:         inst.Symbol,
		Segment:        inst.Segment,
		Product:        req.Product,
		Side:           req.Side,
		Type:           req.Type,
		Status:         types.OrderStatusPending,
		Quantity:       req.Quantity,
		Price:          req.Price,
		QuotePrice:     quotePrice,
		MarginBlocked:  quote.MarginRequired,
		ChargesBlocked: quote.Brokerage.Add(quote.OtherCharges),
		ExecuteAfter:   time.Now().UTC().Add(delay),
	}
	order, err = s.store.Create(ctx, tx, order)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	// The margin block is immediate and visible while the order is
	// still PENDING. The conditional update inside BlockMargin is the
	// InsufficientMargin check; nothing is persisted when it fails.
	if err := s.funds.BlockMargin(ctx, tx, acc.ID, quote.TotalCost, "margin blocked for "+inst.Symbol+" order", order.ID); err != nil {
		return PlaceOrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PlaceOrderResult{}, err
	}
	return PlaceOrderResult{Order: order, Quote: quote}, nil
}

// QuoteOrder prices an order without placing it. Shares Calculate and the
// loaded RiskConfig with placement so the quote matches the charge.
func (s *Service) QuoteOrder(ctx context.Context, req PlaceOrderRequest) (charges.Quote, error) {
	inst, err := s.resolveInstrument(ctx, req)
	if err != nil {
		return charges.Quote{}, err
	}
	if !req.Quantity.IsPositive() {
		return charges.Quote{}, invalid("quantity must be positive")
	}
	cfg, err := charges.LoadRiskConfig(ctx, s.pool)
	if err != nil {
		return charges.Quote{}, err
	}
	var price decimal.Decimal
	if req.Price != nil && req.Price.IsPositive() {
		price = *req.Price
	} else {
		price, err = s.feed.LastTradedPrice(ctx, inst.ID)
		if err != nil {
			return charges.Quote{}, err
		}
	}
	offset := s.offsetQuantity(ctx, req.UserID, inst.ID, req.Product, req.Side, req.Quantity)
	return charges.Calculate(cfg, charges.Input{
		Segment:        inst.Segment,
		Product:        req.Product,
		Quantity:       req.Quantity,
		Price:          price,
		OffsetQuantity: offset,
	}), nil
}

// CancelOrder transitions PENDING → CANCELLED and releases the blocked
// margin byte-for-byte from the amounts stored on the order row. A cancel
// racing the execution worker loses cleanly: the CAS matches zero rows and
// the caller gets ErrOrderNotPending.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := s.store.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return ErrOrderNotFound
	}
	ok, err := s.store.MarkCancelled(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOrderNotPending
	}
	if err := s.releaseBlocked(ctx, tx, o, "margin released ("+o.Symbol+" order cancelled)"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExecutionResult summarizes one fill for callers (worker logs, the close
// API response).
type ExecutionResult struct {
	OrderID     string            `json:"order_id"`
	Status      types.OrderStatus `json:"status"`
	FillPrice   decimal.Decimal   `json:"fill_price"`
	RealizedPnL decimal.Decimal   `json:"realized_pnl"`
	Position    model.Position    `json:"position"`
}

// ExecuteOrder claims a PENDING order and applies its fill: resolve the
// fill price, reconcile the blocked margin to it, consume brokerage and
// statutory charges, and fold the fill into the position. All of it runs
// in one database transaction, so a crash mid-way leaves the order
// PENDING and the books untouched.
func (s *Service) ExecuteOrder(ctx context.Context, orderID string) (ExecutionResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return ExecutionResult{}, err
	}
	defer tx.Rollback(ctx)

	o, err := s.store.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return ExecutionResult{}, err
	}
	if o.Status != types.OrderStatusPending {
		return ExecutionResult{}, ErrOrderNotPending
	}

	inst, err := s.market.GetByID(ctx, o.InstrumentID)
	if err != nil {
		if errors.Is(err, marketdata.ErrInstrumentNotFound) {
			return ExecutionResult{}, fmt.Errorf("%w: instrument %s missing", ErrUnfillable, o.InstrumentID)
		}
		return ExecutionResult{}, err
	}

	fillPrice, err := resolveFillPrice(o, inst)
	if err != nil {
		return ExecutionResult{}, err
	}

	cfg, err := charges.LoadRiskConfig(ctx, s.pool)
	if err != nil {
		return ExecutionResult{}, err
	}
	acc, err := s.funds.EnsureAccount(ctx, tx, o.UserID)
	if err != nil {
		return ExecutionResult{}, err
	}

	// Re-derive the margin requirement inside the transaction. The offset
	// that waived margin at placement came from a non-locking read; the
	// position may have been closed or reduced by another fill in the
	// window since, so the freshly opening portion is sized against the
	// row this transaction locks, at the actual fill price. A shortfall
	// that cannot be covered rejects the order rather than executing it
	// under-margined.
	openPos, posFound, err := s.posStore.GetOpenForUpdate(ctx, tx, o.UserID, o.InstrumentID, o.Product)
	if err != nil {
		return ExecutionResult{}, err
	}
	offset := decimal.Zero
	if posFound {
		offset = offsetAgainst(openPos.Quantity, o.Side, o.Quantity)
	}
	marginAtFill := charges.Calculate(cfg, charges.Input{
		Segment:        o.Segment,
		Product:        o.Product,
		Quantity:       o.Quantity,
		Price:          fillPrice,
		OffsetQuantity: offset,
	}).MarginRequired
	if err := s.adjustBlock(ctx, tx, acc.ID, marginAtFill.Sub(o.MarginBlocked), "margin reconciled at fill", o.ID); err != nil {
		if errors.Is(err, funds.ErrInsufficientMargin) {
			return ExecutionResult{}, fmt.Errorf("%w: margin reconcile: %v", ErrUnfillable, err)
		}
		return ExecutionResult{}, err
	}

	// Charges are advisory at quote time and exact at settlement.
	feesAtFill := charges.Fees(cfg, o.Segment, o.Quantity.Mul(fillPrice))
	if err := s.adjustBlock(ctx, tx, acc.ID, feesAtFill.Sub(o.ChargesBlocked), "charges reconciled to fill price", o.ID); err != nil {
		if errors.Is(err, funds.ErrInsufficientMargin) {
			return ExecutionResult{}, fmt.Errorf("%w: charges reconcile: %v", ErrUnfillable, err)
		}
		return ExecutionResult{}, err
	}
	if feesAtFill.IsPositive() {
		if err := s.funds.ConsumeMargin(ctx, tx, acc.ID, feesAtFill, "brokerage and statutory charges ("+o.Symbol+")", o.ID); err != nil {
			return ExecutionResult{}, err
		}
	}

	ok, err := s.store.ClaimExecuted(ctx, tx, o.ID, fillPrice, o.Quantity)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !ok {
		return ExecutionResult{}, ErrOrderNotPending
	}
	o.FilledQuantity = o.Quantity

	pos, realized, err := s.positions.ApplyExecutedFill(ctx, tx, acc.ID, o, fillPrice, marginAtFill)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{
		OrderID:     o.ID,
		Status:      types.OrderStatusExecuted,
		FillPrice:   fillPrice,
		RealizedPnL: realized,
		Position:    pos,
	}, nil
}

// RejectOrder transitions PENDING → REJECTED and restores the blocked
// margin with a reversing transaction, so a failed execution never leaves
// the user holding blocked margin.
func (s *Service) RejectOrder(ctx context.Context, orderID, reason string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := s.store.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	ok, err := s.store.MarkRejected(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOrderNotPending
	}
	if err := s.releaseBlocked(ctx, tx, o, "margin released ("+o.Symbol+" order rejected: "+reason+")"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type CloseResult struct {
	OrderID     string            `json:"order_id"`
	Status      types.OrderStatus `json:"status"`
	FillPrice   decimal.Decimal   `json:"fill_price"`
	RealizedPnL decimal.Decimal   `json:"realized_pnl"`
}

// ClosePosition synthesizes the opposite-side market order for the open
// quantity and runs it through the normal placement and execution
// pipeline on the fast path, so close P&L and margin bookkeeping live in
// exactly one place.
func (s *Service) ClosePosition(ctx context.Context, userID, positionID string) (CloseResult, error) {
	pos, err := s.posStore.GetByID(ctx, positionID)
	if err != nil {
		return CloseResult{}, err
	}
	if pos.UserID != userID {
		return CloseResult{}, positions.ErrPositionNotFound
	}
	if pos.Quantity.IsZero() {
		return CloseResult{}, ErrPositionNotOpen
	}

	side := types.OrderSideSell
	if pos.Quantity.IsNegative() {
		side = types.OrderSideBuy
	}
	placed, err := s.placeOrder(ctx, PlaceOrderRequest{
		UserID:       userID,
		InstrumentID: pos.InstrumentID,
		Product:      pos.Product,
		Side:         side,
		Type:         types.OrderTypeMarket,
		Quantity:     pos.Quantity.Abs(),
	}, 0)
	if err != nil {
		return CloseResult{}, err
	}

	res, err := s.ExecuteOrder(ctx, placed.Order.ID)
	if err != nil {
		if errors.Is(err, ErrUnfillable) {
			_ = s.RejectOrder(ctx, placed.Order.ID, "close fast path failed")
		}
		return CloseResult{}, err
	}
	return CloseResult{
		OrderID:     res.OrderID,
		Status:      res.Status,
		FillPrice:   res.FillPrice,
		RealizedPnL: res.RealizedPnL,
	}, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]model.Order, error) {
	return s.store.ListByUser(ctx, userID, status, limit)
}

func (s *Service) resolveInstrument(ctx context.Context, req PlaceOrderRequest) (model.Instrument, error) {
	var inst model.Instrument
	var err error
	if req.InstrumentID != "" {
		inst, err = s.market.GetByID(ctx, req.InstrumentID)
	} else if req.Symbol != "" {
		inst, err = s.market.GetBySymbol(ctx, req.Segment, req.Symbol)
	} else {
		return inst, invalid("instrument is required")
	}
	if err != nil {
		if errors.Is(err, marketdata.ErrInstrumentNotFound) {
			return inst, ErrInvalidInstrument
		}
		return inst, err
	}
	return inst, nil
}

// offsetQuantity sizes the part of an order that reduces existing opposite
// exposure; that portion blocks no fresh margin. Best-effort read: on any
// error the order is margined in full, which only over-reserves. The
// figure is an estimate for the placement quote; execution recomputes it
// against the locked position row before filling.
func (s *Service) offsetQuantity(ctx context.Context, userID, instrumentID string, product types.ProductType, side types.OrderSide, qty decimal.Decimal) decimal.Decimal {
	pos, found, err := s.posStore.GetOpen(ctx, userID, instrumentID, product)
	if err != nil || !found {
		return decimal.Zero
	}
	return offsetAgainst(pos.Quantity, side, qty)
}

// offsetAgainst returns the portion of an order that nets against an open
// signed quantity on the other side of the book.
func offsetAgainst(openQty decimal.Decimal, side types.OrderSide, qty decimal.Decimal) decimal.Decimal {
	opposite := (side == types.OrderSideSell && openQty.IsPositive()) ||
		(side == types.OrderSideBuy && openQty.IsNegative())
	if !opposite {
		return decimal.Zero
	}
	open := openQty.Abs()
	if qty.LessThan(open) {
		return qty
	}
	return open
}

func (s *Service) releaseBlocked(ctx context.Context, tx pgx.Tx, o model.Order, desc string) error {
	total := o.MarginBlocked.Add(o.ChargesBlocked)
	if !total.IsPositive() {
		return nil
	}
	acc, err := s.funds.EnsureAccount(ctx, tx, o.UserID)
	if err != nil {
		return err
	}
	return s.funds.ReleaseMargin(ctx, tx, acc.ID, total, desc, o.ID)
}

// adjustBlock moves a signed delta between available and used margin.
func (s *Service) adjustBlock(ctx context.Context, tx pgx.Tx, accountID string, delta decimal.Decimal, desc, ref string) error {
	switch {
	case delta.IsPositive():
		return s.funds.BlockMargin(ctx, tx, accountID, delta, desc, ref)
	case delta.IsNegative():
		return s.funds.ReleaseMargin(ctx, tx, accountID, delta.Neg(), desc, ref)
	default:
		return nil
	}
}

// resolveFillPrice implements the fallback chain for a fill: an average
// price already on the order, then the limit price, then the instrument's
// last traded price. No resolvable price means the order is unfillable,
// never filled at a fabricated value.
func resolveFillPrice(o model.Order, inst model.Instrument) (decimal.Decimal, error) {
	if o.AveragePrice != nil && o.AveragePrice.IsPositive() {
		return *o.AveragePrice, nil
	}
	if o.Price != nil && o.Price.IsPositive() {
		return *o.Price, nil
	}
	if inst.LastTradedPrice != nil && inst.LastTradedPrice.IsPositive() {
		return *inst.LastTradedPrice, nil
	}
	return decimal.Zero, fmt.Errorf("%w: no resolvable price for %s", ErrUnfillable, o.Symbol)
}
