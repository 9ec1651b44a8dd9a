package main

import (
	"context"
	"log"
	"time"

	"otp-auth/internal/app"
	"otp-auth/internal/clock"
	"otp-auth/internal/config"
	"otp-auth/internal/job"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// sweep ejecuta una pasada de limpieza y termina. Pensado para cron del sistema.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.StoreBackend == config.StoreBackendMemory {
		logger.Fatal("sweep needs a persistent store", zap.String("store", cfg.StoreBackend))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	clk := clock.System()
	stores, err := app.OpenStores(ctx, cfg, logger, clk)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	res, err := job.NewSweepJob(logger, stores.Users, stores.Codes, clk, cfg.OTPTTL).Sweep(ctx)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
	logger.Info("sweep done", zap.Int64("expired_codes", res.ExpiredCodes), zap.Int("stale_users", res.StaleUsers))
}
