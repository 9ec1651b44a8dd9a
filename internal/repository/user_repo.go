package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"otp-auth/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	SetVerified(ctx context.Context, email string, at time.Time) error
	UpdatePassword(ctx context.Context, email, passwordHash string, at time.Time) error
	UpdateProfile(ctx context.Context, email string, profile domain.Profile, at time.Time) error
	// DeleteUnverified borra la cuenta solo si sigue sin verificar.
	DeleteUnverified(ctx context.Context, email string) (bool, error)
	ListUnverifiedBefore(ctx context.Context, cutoff time.Time) ([]domain.User, error)
}

// PgUserRepository implementa UserRepository usando pgx.
type PgUserRepository struct {
	pool PgxPool
}

func NewPgUserRepository(pool PgxPool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, name, password_hash, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id, email, name, COALESCE(username, ''), bio, password_hash, is_verified, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) SetVerified(ctx context.Context, email string, at time.Time) error {
	const query = `
		UPDATE users
		SET is_verified = TRUE, updated_at = $2
		WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, at)
	if err != nil {
		return fmt.Errorf("verify user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, email, passwordHash string, at time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, passwordHash, at)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile reemplaza name, username y bio. Un username vacio se guarda como NULL
// para no chocar con el indice unico.
func (r *PgUserRepository) UpdateProfile(ctx context.Context, email string, profile domain.Profile, at time.Time) error {
	const query = `
		UPDATE users
		SET name = $2, username = NULLIF($3, ''), bio = $4, updated_at = $5
		WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, profile.Name, profile.Username, profile.Bio, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PgUserRepository) DeleteUnverified(ctx context.Context, email string) (bool, error) {
	const query = `
		DELETE FROM users
		WHERE email = $1 AND is_verified = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return false, fmt.Errorf("delete unverified user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) ListUnverifiedBefore(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	const query = `
		SELECT id, email, name, COALESCE(username, ''), bio, password_hash, is_verified, created_at, updated_at
		FROM users
		WHERE is_verified = FALSE AND created_at <= $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list unverified users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unverified user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unverified users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Username,
		&u.Bio,
		&u.PasswordHash,
		&u.IsVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
