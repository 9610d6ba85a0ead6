package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"paperbroker/internal/model"
	"paperbroker/internal/orders"
)

// OrderSource lists orders whose scheduled execution time has elapsed.
type OrderSource interface {
	ListDue(ctx context.Context, limit int) ([]model.Order, error)
}

// OrderExecutor runs the fill and reject paths of the order state machine.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, orderID string) (orders.ExecutionResult, error)
	RejectOrder(ctx context.Context, orderID, reason string) error
}

// ExecutionWorker polls for due PENDING orders and executes them. Safe to
// run in multiple processes: the claim inside ExecuteOrder is a
// compare-and-swap, so a duplicate pickup loses the race and moves on.
type ExecutionWorker struct {
	source   OrderSource
	executor OrderExecutor
	interval time.Duration
	limit    int
}

func NewExecutionWorker(source OrderSource, executor OrderExecutor, interval time.Duration, limit int) *ExecutionWorker {
	return &ExecutionWorker{source: source, executor: executor, interval: interval, limit: limit}
}

func (w *ExecutionWorker) Run(ctx context.Context) {
	log.Printf("[orderworker] started, interval=%s batch=%d", w.interval, w.limit)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[orderworker] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExecutionWorker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orderworker] tick panicked: %v", r)
		}
	}()
	due, err := w.source.ListDue(ctx, w.limit)
	if err != nil {
		log.Printf("[orderworker] list due orders: %v", err)
		return
	}
	for _, o := range due {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, o)
	}
}

// process handles one order in isolation: a failure there never stalls the
// rest of the batch.
func (w *ExecutionWorker) process(ctx context.Context, o model.Order) {
	res, err := w.executor.ExecuteOrder(ctx, o.ID)
	switch {
	case err == nil:
		log.Printf("[orderworker] executed order %s %s %s qty=%s fill=%s pnl=%s",
			o.ID, o.Side, o.Symbol, o.Quantity, res.FillPrice, res.RealizedPnL)
	case errors.Is(err, orders.ErrOrderNotPending):
		// Lost the claim to a cancel or another worker; nothing to do.
	case errors.Is(err, orders.ErrUnfillable):
		if rerr := w.executor.RejectOrder(ctx, o.ID, err.Error()); rerr != nil && !errors.Is(rerr, orders.ErrOrderNotPending) {
			log.Printf("[orderworker] reject order %s: %v", o.ID, rerr)
			return
		}
		log.Printf("[orderworker] rejected order %s: %v", o.ID, err)
	default:
		// Transient (database, serialization); the order stays PENDING
		// and the next tick retries it.
		log.Printf("[orderworker] execute order %s: %v", o.ID, err)
	}
}
