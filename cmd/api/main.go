package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"paperbroker/internal/admin"
	"paperbroker/internal/auth"
	"paperbroker/internal/config"
	"paperbroker/internal/db"
	"paperbroker/internal/funds"
	"paperbroker/internal/httpserver"
	"paperbroker/internal/marketdata"
	"paperbroker/internal/orders"
	"paperbroker/internal/positions"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[api] config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("[api] database: %v", err)
	}
	defer pool.Close()

	marketStore := marketdata.NewStore(pool)
	bus := marketdata.NewBus()
	ws := marketdata.NewWSHandler(bus, cfg.WebSocketOrigin)

	fundsSvc := funds.NewService(pool)
	posStore := positions.NewStore(pool)
	posSvc := positions.NewService(posStore, fundsSvc)
	orderStore := orders.NewStore(pool)
	orderSvc := orders.NewService(pool, orderStore, fundsSvc, marketStore, marketStore, posSvc, cfg.OrderExecutionDelay)
	authSvc := auth.NewService(pool, cfg.JWTIssuer, cfg.JWTSecret, cfg.JWTTTL)
	adminSvc := admin.NewService(pool, fundsSvc, posStore)

	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:          auth.NewHandler(authSvc),
		AuthSvc:       authSvc,
		Orders:        orders.NewHandler(orderSvc),
		Positions:     positions.NewHandler(posStore, marketStore),
		Funds:         funds.NewHandler(fundsSvc),
		Market:        marketdata.NewHandler(marketStore, bus, ws),
		Admin:         admin.NewHandler(adminSvc),
		InternalToken: cfg.InternalToken,
	})

	if err := httpserver.Run(ctx, cfg.HTTPAddr, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[api] server: %v", err)
	}
}
