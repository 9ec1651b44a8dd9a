package repository

import (
	"context"
	"crypto/subtle"
	"sort"
	"strings"
	"sync"
	"time"

	"otp-auth/internal/domain"
)

// MemoryUserRepository guarda usuarios en memoria. Util para desarrollo local y tests.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func memKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *MemoryUserRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(user.Email)
	if _, ok := r.users[key]; ok {
		return ErrDuplicateEmail
	}
	r.users[key] = user
	return nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[memKey(email)]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) SetVerified(_ context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(email)
	user, ok := r.users[key]
	if !ok {
		return ErrUserNotFound
	}
	user.IsVerified = true
	user.UpdatedAt = at
	r.users[key] = user
	return nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, email, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(email)
	user, ok := r.users[key]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = at
	r.users[key] = user
	return nil
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, email string, profile domain.Profile, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(email)
	user, ok := r.users[key]
	if !ok {
		return ErrUserNotFound
	}
	if profile.Username != "" {
		for k, other := range r.users {
			if k != key && other.Username == profile.Username {
				return ErrDuplicateUsername
			}
		}
	}
	user.Name = profile.Name
	user.Username = profile.Username
	user.Bio = profile.Bio
	user.UpdatedAt = at
	r.users[key] = user
	return nil
}

func (r *MemoryUserRepository) DeleteUnverified(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(email)
	user, ok := r.users[key]
	if !ok || user.IsVerified {
		return false, nil
	}
	delete(r.users, key)
	return true, nil
}

func (r *MemoryUserRepository) ListUnverifiedBefore(_ context.Context, cutoff time.Time) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		if !u.IsVerified && !u.CreatedAt.After(cutoff) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type codeKey struct {
	email   string
	purpose domain.Purpose
}

// MemoryCodeRepository implementa CodeRepository con un mapa protegido por mutex.
type MemoryCodeRepository struct {
	mu    sync.Mutex
	codes map[codeKey]domain.OneTimeCode
}

func NewMemoryCodeRepository() *MemoryCodeRepository {
	return &MemoryCodeRepository{codes: make(map[codeKey]domain.OneTimeCode)}
}

func (r *MemoryCodeRepository) Put(_ context.Context, code domain.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[codeKey{memKey(code.Email), code.Purpose}] = code
	return nil
}

func (r *MemoryCodeRepository) GetLive(_ context.Context, email string, purpose domain.Purpose, now time.Time) (domain.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[codeKey{memKey(email), purpose}]
	if !ok || !code.LiveAt(now) {
		return domain.OneTimeCode{}, ErrCodeNotFound
	}
	return code, nil
}

func (r *MemoryCodeRepository) Consume(_ context.Context, email string, purpose domain.Purpose, codeHash string, now time.Time) (domain.ConsumeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := codeKey{memKey(email), purpose}
	code, ok := r.codes[key]
	if !ok {
		return domain.ConsumeNotFound, nil
	}
	if !code.LiveAt(now) {
		delete(r.codes, key)
		return domain.ConsumeExpired, nil
	}
	if subtle.ConstantTimeCompare([]byte(code.CodeHash), []byte(codeHash)) != 1 {
		return domain.ConsumeMismatch, nil
	}
	delete(r.codes, key)
	return domain.ConsumeOK, nil
}

func (r *MemoryCodeRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, code := range r.codes {
		if !code.LiveAt(now) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

func (r *MemoryCodeRepository) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = memKey(email)
	for k := range r.codes {
		if k.email == email {
			delete(r.codes, k)
		}
	}
	return nil
}
