package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otp-auth/internal/clock"
	"otp-auth/internal/config"
	"otp-auth/internal/db"
	"otp-auth/internal/repository"
	"otp-auth/internal/service"
)

// Stores agrupa los almacenes elegidos segun la configuracion.
type Stores struct {
	Users  repository.UserRepository
	Codes  repository.CodeRepository
	Grants service.ResetGrantStore
	Pool   *pgxpool.Pool
	Redis  *redis.Client
}

// Close libera las conexiones abiertas.
func (s *Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Ping verifica la base cuando el backend es postgres.
func (s *Stores) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return db.Ping(ctx, s.Pool)
}

// OpenStores abre Postgres o memoria para usuarios y codigos. Si hay Redis disponible,
// los codigos y las autorizaciones de reset pasan a Redis.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, clk clock.Clock) (*Stores, error) {
	s := &Stores{}
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		s.Users = repository.NewMemoryUserRepository()
		s.Codes = repository.NewMemoryCodeRepository()
		logger.Warn("using in-memory stores, data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		s.Pool = pool
		s.Users = repository.NewPgUserRepository(pool)
		s.Codes = repository.NewPgCodeRepository(pool)
	}
	s.Grants = service.NewMemoryResetGrantStore(clk)

	if cfg.RedisAddr == "" {
		return s, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed, keeping codes in primary store", zap.Error(err))
		_ = client.Close()
		return s, nil
	}
	s.Redis = client
	s.Codes = repository.NewRedisCodeRepository(client)
	s.Grants = service.NewRedisResetGrantStore(client)
	logger.Info("redis enabled for codes and reset grants", zap.String("addr", cfg.RedisAddr))
	return s, nil
}
