package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"otp-auth/internal/clock"
)

const (
	DefaultSessionTTL    = 100 * 24 * time.Hour
	DefaultResetGrantTTL = 10 * time.Minute

	tokenTypeSession = "session"
	tokenTypeReset   = "reset"
)

// TokenIssuer emite y valida tokens de sesion y autorizaciones de reset.
type TokenIssuer interface {
	IssueSession(email string) (string, error)
	ParseSession(token string) (Claims, error)
	IssueResetGrant(ctx context.Context, email string) (string, error)
	RedeemResetGrant(ctx context.Context, token, email string) error
}

// JWTService emite y valida tokens JWT.
type JWTService struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	issuer     string
	grants     ResetGrantStore
	clock      clock.Clock
}

type Claims struct {
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, sessionTTL, resetTTL time.Duration, clk clock.Clock) *JWTService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if resetTTL <= 0 {
		resetTTL = DefaultResetGrantTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &JWTService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		issuer:     "otp-auth",
		grants:     NewMemoryResetGrantStore(clk),
		clock:      clk,
	}
}

func NewJWTServiceWithStore(secret string, sessionTTL, resetTTL time.Duration, store ResetGrantStore, clk clock.Clock) *JWTService {
	svc := NewJWTService(secret, sessionTTL, resetTTL, clk)
	if store != nil {
		svc.grants = store
	}
	return svc
}

// IssueSession firma un token de sesion de larga duracion para el email.
func (s *JWTService) IssueSession(email string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	return s.sign(email, tokenTypeSession, "", s.sessionTTL)
}

func (s *JWTService) ParseSession(token string) (Claims, error) {
	claims, err := s.parseTyped(token, tokenTypeSession)
	if err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// IssueResetGrant firma una autorizacion de reset de un solo uso y registra su jti.
func (s *JWTService) IssueResetGrant(ctx context.Context, email string) (string, error) {
	if len(s.secret) == 0 || s.grants == nil {
		return "", ErrJWTInvalid
	}
	jti := uuid.NewString()
	signed, err := s.sign(email, tokenTypeReset, jti, s.resetTTL)
	if err != nil {
		return "", err
	}
	if err := s.grants.Store(ctx, jti, email, s.resetTTL); err != nil {
		return "", err
	}
	return signed, nil
}

// RedeemResetGrant valida la autorizacion para el email y la invalida.
func (s *JWTService) RedeemResetGrant(ctx context.Context, token, email string) error {
	claims, err := s.parseTyped(token, tokenTypeReset)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.Subject != email || s.grants == nil {
		return ErrJWTInvalid
	}
	stored, ok, err := s.grants.Take(ctx, claims.ID)
	if err != nil {
		return err
	}
	if !ok || stored != email {
		return ErrJWTInvalid
	}
	return nil
}

func (s *JWTService) sign(email, tokenType, jti string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseTyped(tokenString, tokenType string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenType {
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.Email) == "" {
		return false
	}
	if claims.Subject != claims.Email {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
