package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"otp-auth/internal/clock"
	"otp-auth/internal/domain"
	"otp-auth/internal/email"
	"otp-auth/internal/repository"
)

const (
	DefaultOTPTTL = 5 * time.Minute
	otpDigits     = 6
	appName       = "otp-auth"
)

// VerifyResult es el resultado de validar un codigo enviado por el usuario.
type VerifyResult int

const (
	VerifyNotFound VerifyResult = iota
	VerifyValid
	VerifyExpired
	VerifyMismatch
)

// OTPService emite, valida e invalida codigos de un solo uso.
type OTPService struct {
	logger   *zap.Logger
	codes    repository.CodeRepository
	sender   email.Sender
	clock    clock.Clock
	ttl      time.Duration
	secret   []byte
	generate func() (string, error)
}

func NewOTPService(logger *zap.Logger, codes repository.CodeRepository, sender email.Sender, clk clock.Clock, ttl time.Duration, secret string) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{
		logger:   logger,
		codes:    codes,
		sender:   sender,
		clock:    clk,
		ttl:      ttl,
		secret:   []byte(secret),
		generate: generateOTPCode,
	}
}

func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue genera un codigo nuevo, reemplaza el anterior y lo envia por email.
// Si el envio falla el codigo queda guardado y sigue siendo valido.
func (s *OTPService) Issue(ctx context.Context, emailAddr string, purpose domain.Purpose) (time.Time, error) {
	if !purpose.Valid() {
		return time.Time{}, ErrInvalidPurpose
	}
	code, err := s.generate()
	if err != nil {
		return time.Time{}, fmt.Errorf("generate otp: %w", err)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	if err := s.codes.Put(ctx, domain.OneTimeCode{
		Email:     emailAddr,
		Purpose:   purpose,
		CodeHash:  s.digest(emailAddr, purpose, code),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}); err != nil {
		return time.Time{}, err
	}

	subject, body, err := email.RenderCode(appName, purpose, code, s.ttl)
	if err != nil {
		return time.Time{}, err
	}
	if s.sender == nil {
		return expiresAt, ErrEmailSendFailure
	}
	if err := s.sender.Send(ctx, emailAddr, subject, body); err != nil {
		s.logger.Warn("send otp failed",
			zap.Error(err),
			zap.String("email", emailAddr),
			zap.String("purpose", string(purpose)),
		)
		return expiresAt, fmt.Errorf("%w: %v", ErrEmailSendFailure, err)
	}
	return expiresAt, nil
}

// Verify consume el codigo si es correcto. Un envio mal formado se compara con un
// digest vacio, que nunca coincide: responde MISMATCH sin tocar un codigo vivo, pero
// sigue distinguiendo NOT_FOUND y EXPIRED.
func (s *OTPService) Verify(ctx context.Context, emailAddr string, purpose domain.Purpose, submitted string) (VerifyResult, error) {
	submitted = strings.TrimSpace(submitted)
	malformed := !isValidOTPCode(submitted)
	digest := ""
	if !malformed {
		digest = s.digest(emailAddr, purpose, submitted)
	}
	outcome, err := s.codes.Consume(ctx, emailAddr, purpose, digest, s.clock.Now())
	if err != nil {
		return VerifyNotFound, err
	}
	switch outcome {
	case domain.ConsumeOK:
		if malformed {
			return VerifyMismatch, nil
		}
		return VerifyValid, nil
	case domain.ConsumeExpired:
		return VerifyExpired, nil
	case domain.ConsumeMismatch:
		return VerifyMismatch, nil
	default:
		return VerifyNotFound, nil
	}
}

// HasLive reporta si existe un codigo vivo para el par.
func (s *OTPService) HasLive(ctx context.Context, emailAddr string, purpose domain.Purpose) (bool, error) {
	_, err := s.codes.GetLive(ctx, emailAddr, purpose, s.clock.Now())
	if errors.Is(err, repository.ErrCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate borra todos los codigos del email.
func (s *OTPService) Invalidate(ctx context.Context, emailAddr string) error {
	return s.codes.DeleteByEmail(ctx, emailAddr)
}

// digest liga el codigo a su email y proposito con un HMAC del secreto del servidor.
func (s *OTPService) digest(emailAddr string, purpose domain.Purpose, code string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(emailAddr))
	mac.Write([]byte{0})
	mac.Write([]byte(purpose))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func isValidOTPCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
