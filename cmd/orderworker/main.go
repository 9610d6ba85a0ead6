package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"paperbroker/internal/config"
	"paperbroker/internal/db"
	"paperbroker/internal/funds"
	"paperbroker/internal/marketdata"
	"paperbroker/internal/orders"
	"paperbroker/internal/positions"
	"paperbroker/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	dsn, err := config.DSN()
	if err != nil {
		log.Fatalf("[orderworker] config: %v", err)
	}
	wcfg, err := config.LoadOrderWorker()
	if err != nil {
		log.Fatalf("[orderworker] config: %v", err)
	}
	delay, err := config.LoadExecutionDelay()
	if err != nil {
		log.Fatalf("[orderworker] config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("[orderworker] database: %v", err)
	}
	defer pool.Close()

	marketStore := marketdata.NewStore(pool)
	fundsSvc := funds.NewService(pool)
	posSvc := positions.NewService(positions.NewStore(pool), fundsSvc)
	orderStore := orders.NewStore(pool)
	orderSvc := orders.NewService(pool, orderStore, fundsSvc, marketStore, marketStore, posSvc, delay)

	worker.NewExecutionWorker(orderStore, orderSvc, wcfg.Interval, wcfg.BatchLimit).Run(ctx)
}
