package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otp-auth/internal/app"
	"otp-auth/internal/clock"
	"otp-auth/internal/config"
	"otp-auth/internal/email"
	apihttp "otp-auth/internal/http"
	"otp-auth/internal/job"
	"otp-auth/internal/schedule"
	"otp-auth/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	clk := clock.System()
	stores, err := app.OpenStores(ctx, cfg, logger, clk)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	jwtSvc := service.NewJWTServiceWithStore(cfg.JWTSecret, cfg.SessionTTL, cfg.ResetGrantTTL, stores.Grants, clk)
	otpSvc := service.NewOTPService(logger, stores.Codes, emailSender, clk, cfg.OTPTTL, cfg.OTPSecret)
	authSvc := service.NewAuthService(
		logger,
		stores.Users,
		otpSvc,
		service.NewBcryptHasher(cfg.BcryptCost),
		jwtSvc,
		clk,
		service.WithMinPasswordLength(cfg.PasswordMinLength),
	)

	var scheduler *schedule.CronScheduler
	if cfg.SweepSchedule != "" {
		scheduler = schedule.NewCronScheduler(logger)
		sweep := job.NewSweepJob(logger, stores.Users, stores.Codes, clk, cfg.OTPTTL)
		if err := scheduler.AddJob(sweep, cfg.SweepSchedule); err != nil {
			logger.Fatal("schedule sweep", zap.Error(err))
		}
		scheduler.Start(ctx)
	}

	authHandler := apihttp.NewAuthHandler(logger, authSvc)
	router := apihttp.NewRouter(logger, authHandler, jwtSvc, stores.Ping)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreBackend))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
}
