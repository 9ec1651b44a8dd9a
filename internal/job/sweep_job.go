package job

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"otp-auth/internal/clock"
	"otp-auth/internal/domain"
	"otp-auth/internal/repository"
)

// SweepResult resume lo que borro una pasada de limpieza.
type SweepResult struct {
	ExpiredCodes int64
	StaleUsers   int
}

// SweepJob borra codigos expirados y cuentas sin verificar cuyo codigo de registro caduco.
type SweepJob struct {
	logger     *zap.Logger
	users      repository.UserRepository
	codes      repository.CodeRepository
	clock      clock.Clock
	staleAfter time.Duration
}

func NewSweepJob(logger *zap.Logger, users repository.UserRepository, codes repository.CodeRepository, clk clock.Clock, staleAfter time.Duration) *SweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &SweepJob{
		logger:     logger,
		users:      users,
		codes:      codes,
		clock:      clk,
		staleAfter: staleAfter,
	}
}

func (j *SweepJob) Name() string {
	return "auth_sweep"
}

func (j *SweepJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep ejecuta una pasada. Una cuenta con codigo de registro vivo (p. ej. reenviado
// por login) no se borra aunque sea vieja.
func (j *SweepJob) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if j.users == nil || j.codes == nil {
		return res, nil
	}
	now := j.clock.Now()

	expired, err := j.codes.DeleteExpired(ctx, now)
	if err != nil {
		return res, err
	}
	res.ExpiredCodes = expired

	candidates, err := j.users.ListUnverifiedBefore(ctx, now.Add(-j.staleAfter))
	if err != nil {
		return res, err
	}
	for _, u := range candidates {
		if _, err := j.codes.GetLive(ctx, u.Email, domain.PurposeVerifyRegistration, now); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrCodeNotFound) {
			return res, err
		}
		deleted, err := j.users.DeleteUnverified(ctx, u.Email)
		if err != nil {
			return res, err
		}
		if !deleted {
			continue
		}
		if err := j.codes.DeleteByEmail(ctx, u.Email); err != nil {
			return res, err
		}
		res.StaleUsers++
	}

	j.logger.Info("sweep finished",
		zap.Int64("expired_codes", res.ExpiredCodes),
		zap.Int("stale_users", res.StaleUsers),
	)
	return res, nil
}
