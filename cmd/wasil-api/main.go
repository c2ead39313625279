// Entry point; loads config, runs migrations, wires services, starts the HTTP
// server and the realtime gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wasil/internal/auth"
	"wasil/internal/cache"
	"wasil/internal/config"
	"wasil/internal/events"
	"wasil/internal/gateway"
	httptransport "wasil/internal/http"
	"wasil/internal/infra"
	"wasil/internal/logger"
	"wasil/internal/modules/driver"
	"wasil/internal/modules/order"
	"wasil/internal/modules/wallet"
)

func main() {
	log := logger.New(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.Migrate(cfg.MigrationsDir, cfg.DatabaseDSN); err != nil {
		log.WithError(err).Fatal("run migrations")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	bus := events.NewBus(log)
	orderCache := cache.New(redisClient, cfg.Cache.OrderTTL, cfg.Cache.OrderListTTL)

	walletStore := wallet.NewStore(dbPool)
	walletSvc := wallet.NewService(walletStore, log)

	driverStore := driver.NewStore(dbPool, redisClient)
	driverSvc := driver.NewService(driverStore, log)

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, walletSvc, orderCache, bus, driverSvc, log)

	gw := gateway.New(verifier, driverSvc, orderSvc, cfg.Socket, log)
	gw.Register(bus)
	go gw.Run(ctx)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:   orderSvc,
		Drivers:  driverSvc,
		Wallets:  walletSvc,
		Gateway:  gw,
		Verifier: verifier,
		Matching: cfg.Matching,
		Log:      log,
	})

	server := httptransport.NewServer(cfg.HTTPAddr, handler)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTPAddr).Info("listening")
	if err := server.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("server")
	}
	log.Info("shut down cleanly")
}
