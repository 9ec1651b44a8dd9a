package repository

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"otp-auth/internal/domain"
)

// CodeRepository persiste los codigos de un solo uso, uno por (email, purpose).
type CodeRepository interface {
	// Put reemplaza cualquier codigo previo del mismo par.
	Put(ctx context.Context, code domain.OneTimeCode) error
	GetLive(ctx context.Context, email string, purpose domain.Purpose, now time.Time) (domain.OneTimeCode, error)
	// Consume borra el codigo si coincide y sigue vivo. Un codigo expirado tambien se borra.
	Consume(ctx context.Context, email string, purpose domain.Purpose, codeHash string, now time.Time) (domain.ConsumeOutcome, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteByEmail(ctx context.Context, email string) error
}

// PgCodeRepository implementa CodeRepository sobre la tabla one_time_codes.
type PgCodeRepository struct {
	pool PgxPool
}

func NewPgCodeRepository(pool PgxPool) *PgCodeRepository {
	return &PgCodeRepository{pool: pool}
}

func (r *PgCodeRepository) Put(ctx context.Context, code domain.OneTimeCode) error {
	const query = `
		INSERT INTO one_time_codes (email, purpose, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email, purpose) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`
	_, err := r.pool.Exec(ctx, query,
		code.Email,
		string(code.Purpose),
		code.CodeHash,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert code: %w", err)
	}
	return nil
}

func (r *PgCodeRepository) GetLive(ctx context.Context, email string, purpose domain.Purpose, now time.Time) (domain.OneTimeCode, error) {
	const query = `
		SELECT code_hash, expires_at, created_at
		FROM one_time_codes
		WHERE email = $1 AND purpose = $2 AND expires_at > $3
	`
	code := domain.OneTimeCode{Email: email, Purpose: purpose}
	err := r.pool.QueryRow(ctx, query, email, string(purpose), now).Scan(
		&code.CodeHash,
		&code.ExpiresAt,
		&code.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OneTimeCode{}, ErrCodeNotFound
	}
	if err != nil {
		return domain.OneTimeCode{}, fmt.Errorf("select code: %w", err)
	}
	return code, nil
}

func (r *PgCodeRepository) Consume(ctx context.Context, email string, purpose domain.Purpose, codeHash string, now time.Time) (domain.ConsumeOutcome, error) {
	const selectQuery = `
		SELECT code_hash, expires_at
		FROM one_time_codes
		WHERE email = $1 AND purpose = $2
		FOR UPDATE
	`
	const deleteQuery = `
		DELETE FROM one_time_codes
		WHERE email = $1 AND purpose = $2
	`
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ConsumeNotFound, fmt.Errorf("begin consume: %w", err)
	}

	var (
		storedHash string
		expiresAt  time.Time
	)
	err = tx.QueryRow(ctx, selectQuery, email, string(purpose)).Scan(&storedHash, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return domain.ConsumeNotFound, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return domain.ConsumeNotFound, fmt.Errorf("lock code: %w", err)
	}

	outcome := domain.ConsumeOK
	switch {
	case !now.Before(expiresAt):
		outcome = domain.ConsumeExpired
	case subtle.ConstantTimeCompare([]byte(storedHash), []byte(codeHash)) != 1:
		_ = tx.Rollback(ctx)
		return domain.ConsumeMismatch, nil
	}

	if _, err := tx.Exec(ctx, deleteQuery, email, string(purpose)); err != nil {
		_ = tx.Rollback(ctx)
		return domain.ConsumeNotFound, fmt.Errorf("delete code: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ConsumeNotFound, fmt.Errorf("commit consume: %w", err)
	}
	return outcome, nil
}

func (r *PgCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM one_time_codes WHERE expires_at <= $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgCodeRepository) DeleteByEmail(ctx context.Context, email string) error {
	const query = `DELETE FROM one_time_codes WHERE email = $1`
	if _, err := r.pool.Exec(ctx, query, email); err != nil {
		return fmt.Errorf("delete codes by email: %w", err)
	}
	return nil
}
