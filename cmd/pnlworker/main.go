package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"paperbroker/internal/config"
	"paperbroker/internal/db"
	"paperbroker/internal/marketdata"
	"paperbroker/internal/positions"
	"paperbroker/internal/worker"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()

	dsn, err := config.DSN()
	if err != nil {
		log.Fatalf("[pnlworker] config: %v", err)
	}
	wcfg, err := config.LoadPnLWorker()
	if err != nil {
		log.Fatalf("[pnlworker] config: %v", err)
	}
	threshold, err := decimal.NewFromString(wcfg.UpdateThreshold)
	if err != nil || threshold.IsNegative() {
		log.Fatalf("[pnlworker] invalid POSITION_PNL_UPDATE_THRESHOLD %q", wcfg.UpdateThreshold)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("[pnlworker] database: %v", err)
	}
	defer pool.Close()

	worker.NewPnLWorker(positions.NewStore(pool), marketdata.NewStore(pool),
		wcfg.Interval, wcfg.BatchLimit, threshold).Run(ctx)
}
