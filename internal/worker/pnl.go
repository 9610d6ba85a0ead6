package worker

import (
	"context"
	"log"
	"time"

	"paperbroker/internal/model"
	"paperbroker/internal/positions"

	"github.com/shopspring/decimal"
)

// PositionSource lists open positions and persists their marks.
type PositionSource interface {
	ListOpen(ctx context.Context, limit int) ([]model.Position, error)
	UpdatePnL(ctx context.Context, id string, unrealized, day decimal.Decimal) error
}

// PriceFeed supplies marks for open positions.
type PriceFeed interface {
	LastTradedPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)
	PreviousClose(ctx context.Context, instrumentID string) (decimal.Decimal, error)
}

// PnLWorker marks open positions to the last traded price. It writes only
// the display P&L columns; balances, margin and cost basis belong to the
// settlement path and are never touched here.
type PnLWorker struct {
	source    PositionSource
	feed      PriceFeed
	interval  time.Duration
	limit     int
	threshold decimal.Decimal
}

func NewPnLWorker(source PositionSource, feed PriceFeed, interval time.Duration, limit int, threshold decimal.Decimal) *PnLWorker {
	return &PnLWorker{source: source, feed: feed, interval: interval, limit: limit, threshold: threshold}
}

func (w *PnLWorker) Run(ctx context.Context) {
	log.Printf("[pnlworker] started, interval=%s batch=%d threshold=%s", w.interval, w.limit, w.threshold)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[pnlworker] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PnLWorker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pnlworker] tick panicked: %v", r)
		}
	}()
	open, err := w.source.ListOpen(ctx, w.limit)
	if err != nil {
		log.Printf("[pnlworker] list open positions: %v", err)
		return
	}
	for _, p := range open {
		if ctx.Err() != nil {
			return
		}
		if err := w.mark(ctx, p); err != nil {
			log.Printf("[pnlworker] mark position %s: %v", p.ID, err)
		}
	}
}

func (w *PnLWorker) mark(ctx context.Context, p model.Position) error {
	ltp, err := w.feed.LastTradedPrice(ctx, p.InstrumentID)
	if err != nil {
		// No price yet for this instrument; leave the stored marks alone.
		return nil
	}
	unrealized := positions.UnrealizedPnL(p.Quantity, p.AveragePrice, ltp)
	day := p.DayPnL
	if prev, err := w.feed.PreviousClose(ctx, p.InstrumentID); err == nil {
		day = positions.UnrealizedPnL(p.Quantity, prev, ltp)
	}
	// Skip the write when the mark barely moved; with thousands of open
	// positions the threshold is what keeps the update volume sane.
	if unrealized.Sub(p.UnrealizedPnL).Abs().LessThan(w.threshold) &&
		day.Sub(p.DayPnL).Abs().LessThan(w.threshold) {
		return nil
	}
	return w.source.UpdatePnL(ctx, p.ID, unrealized, day)
}
