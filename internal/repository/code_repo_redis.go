package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"otp-auth/internal/domain"
)

// redisConsumeScript devuelve 0 si no hay codigo, 1 si se consumio, 2 si expiro y 3 si no coincide.
const redisConsumeScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return 0
end
local sep = string.find(v, "|", 1, true)
if not sep then
  redis.call("DEL", KEYS[1])
  return 0
end
local hash = string.sub(v, 1, sep - 1)
local rest = string.sub(v, sep + 1)
local sep2 = string.find(rest, "|", 1, true)
local exp = tonumber(string.sub(rest, 1, (sep2 or 0) - 1))
if exp == nil or exp <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 2
end
if hash ~= ARGV[1] then
  return 3
end
redis.call("DEL", KEYS[1])
return 1
`

type redisCodeClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisCodeRepository guarda cada codigo en una key con TTL; la expiracion
// de Redis hace de barrido una vez pasada la retencion.
type RedisCodeRepository struct {
	client redisCodeClient
	prefix string
}

func NewRedisCodeRepository(client *redis.Client) *RedisCodeRepository {
	if client == nil {
		return nil
	}
	return &RedisCodeRepository{
		client: client,
		prefix: "otp:code:",
	}
}

func (r *RedisCodeRepository) key(email string, purpose domain.Purpose) string {
	return r.prefix + string(purpose) + ":" + strings.ToLower(strings.TrimSpace(email))
}

// Put guarda el codigo con un TTL de Redis del doble de su vida logica. La
// expiracion la decide expires_at; asi un codigo vencido sigue visible como EXPIRED
// hasta que Redis lo limpia.
func (r *RedisCodeRepository) Put(ctx context.Context, code domain.OneTimeCode) error {
	key := r.key(code.Email, code.Purpose)
	ttl := code.ExpiresAt.Sub(code.CreatedAt)
	if ttl <= 0 {
		return r.client.Del(ctx, key).Err()
	}
	if err := r.client.Set(ctx, key, encodeCode(code), ttl+codeRetention(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set code: %w", err)
	}
	return nil
}

func (r *RedisCodeRepository) GetLive(ctx context.Context, email string, purpose domain.Purpose, now time.Time) (domain.OneTimeCode, error) {
	raw, err := r.client.Get(ctx, r.key(email, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.OneTimeCode{}, ErrCodeNotFound
	}
	if err != nil {
		return domain.OneTimeCode{}, fmt.Errorf("redis get code: %w", err)
	}
	code, ok := decodeCode(raw)
	if !ok || !code.LiveAt(now) {
		return domain.OneTimeCode{}, ErrCodeNotFound
	}
	code.Email = email
	code.Purpose = purpose
	return code, nil
}

func (r *RedisCodeRepository) Consume(ctx context.Context, email string, purpose domain.Purpose, codeHash string, now time.Time) (domain.ConsumeOutcome, error) {
	res, err := r.client.Eval(ctx, redisConsumeScript, []string{r.key(email, purpose)}, codeHash, now.UnixMilli()).Int()
	if err != nil {
		return domain.ConsumeNotFound, fmt.Errorf("redis consume code: %w", err)
	}
	switch res {
	case 1:
		return domain.ConsumeOK, nil
	case 2:
		return domain.ConsumeExpired, nil
	case 3:
		return domain.ConsumeMismatch, nil
	default:
		return domain.ConsumeNotFound, nil
	}
}

// DeleteExpired no hace nada: Redis expira las keys por TTL.
func (r *RedisCodeRepository) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *RedisCodeRepository) DeleteByEmail(ctx context.Context, email string) error {
	keys := []string{
		r.key(email, domain.PurposeVerifyRegistration),
		r.key(email, domain.PurposeResetPassword),
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete codes: %w", err)
	}
	return nil
}

func codeRetention(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

func encodeCode(code domain.OneTimeCode) string {
	return code.CodeHash + "|" +
		strconv.FormatInt(code.ExpiresAt.UnixMilli(), 10) + "|" +
		strconv.FormatInt(code.CreatedAt.UnixMilli(), 10)
}

func decodeCode(raw string) (domain.OneTimeCode, bool) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 {
		return domain.OneTimeCode{}, false
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.OneTimeCode{}, false
	}
	created, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return domain.OneTimeCode{}, false
	}
	return domain.OneTimeCode{
		CodeHash:  parts[0],
		ExpiresAt: time.UnixMilli(expires).UTC(),
		CreatedAt: time.UnixMilli(created).UTC(),
	}, true
}
