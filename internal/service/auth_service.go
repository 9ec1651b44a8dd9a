package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-auth/internal/clock"
	"otp-auth/internal/domain"
	"otp-auth/internal/repository"
)

const maxPasswordLen = 72

// AuthService coordina registro, login, verificacion por OTP y reset de password.
type AuthService struct {
	logger *zap.Logger
	users  repository.UserRepository
	otp    *OTPService
	hasher PasswordHasher
	tokens TokenIssuer
	clock  clock.Clock

	minPasswordLen int
	validate       *validator.Validate
	dummyOnce      sync.Once
	dummyHash      string
}

// AuthOption ajusta parametros opcionales de AuthService.
type AuthOption func(*AuthService)

// WithMinPasswordLength fija el largo minimo aceptado para passwords nuevos.
func WithMinPasswordLength(n int) AuthOption {
	return func(s *AuthService) {
		if n > 0 {
			s.minPasswordLen = n
		}
	}
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, otp *OTPService, hasher PasswordHasher, tokens TokenIssuer, clk clock.Clock, opts ...AuthOption) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if clk == nil {
		clk = clock.System()
	}
	s := &AuthService{
		logger:         logger,
		users:          users,
		otp:            otp,
		hasher:         hasher,
		tokens:         tokens,
		clock:          clk,
		minPasswordLen: 1,
		validate:       validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginResult struct {
	User                 domain.User
	Token                string
	VerificationRequired bool
}

type VerifyEmailResult struct {
	User       domain.User
	Token      string
	ResetToken string
}

// ProfileUpdateInput lleva solo los campos enviados; nil deja el valor actual.
type ProfileUpdateInput struct {
	Name     *string
	Username *string
	Bio      *string
}

type ResetPasswordInput struct {
	Email       string
	NewPassword string
	ResetToken  string
}

// Register crea el usuario sin verificar y le envia el codigo de registro.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr, err := s.normalizeAndValidateEmail(input.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.validatePassword(input.Password); err != nil {
		return domain.User{}, err
	}

	existing, err := s.users.GetByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if err := s.reclaimStale(ctx, existing); err != nil {
			return domain.User{}, err
		}
	case !errors.Is(err, repository.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock.Now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrDuplicateEmail
		}
		return domain.User{}, err
	}

	if _, err := s.otp.Issue(ctx, emailAddr, domain.PurposeVerifyRegistration); err != nil {
		return user, err
	}
	return user, nil
}

// reclaimStale libera el email de una cuenta sin verificar cuyo codigo ya caduco.
func (s *AuthService) reclaimStale(ctx context.Context, user domain.User) error {
	if user.IsVerified {
		return ErrDuplicateEmail
	}
	if s.clock.Now().Sub(user.CreatedAt) < s.otp.TTL() {
		return ErrDuplicateEmail
	}
	live, err := s.otp.HasLive(ctx, user.Email, domain.PurposeVerifyRegistration)
	if err != nil {
		return fmt.Errorf("check registration code: %w", err)
	}
	if live {
		return ErrDuplicateEmail
	}
	deleted, err := s.users.DeleteUnverified(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("delete stale user: %w", err)
	}
	if !deleted {
		return ErrDuplicateEmail
	}
	if err := s.otp.Invalidate(ctx, user.Email); err != nil {
		return fmt.Errorf("delete stale codes: %w", err)
	}
	s.logger.Info("reclaimed stale unverified account", zap.String("email", user.Email))
	return nil
}

// Login autentica al usuario. Si no esta verificado reenvia el codigo y no emite token.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// mismo costo que un email existente
			s.hasher.Verify(password, s.dummyPasswordHash())
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsVerified {
		if _, err := s.otp.Issue(ctx, emailAddr, domain.PurposeVerifyRegistration); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{User: user, VerificationRequired: true}, nil
	}

	token, err := s.tokens.IssueSession(user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}
	return LoginResult{User: user, Token: token}, nil
}

// VerifyEmail consume el codigo del proposito indicado (registro por defecto).
func (s *AuthService) VerifyEmail(ctx context.Context, emailAddr, code string, purpose domain.Purpose) (VerifyEmailResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return VerifyEmailResult{}, ErrInvalidEmail
	}
	if purpose == "" {
		purpose = domain.PurposeVerifyRegistration
	}
	if !purpose.Valid() {
		return VerifyEmailResult{}, ErrInvalidPurpose
	}

	res, err := s.otp.Verify(ctx, emailAddr, purpose, code)
	if err != nil {
		return VerifyEmailResult{}, fmt.Errorf("verify code: %w", err)
	}
	switch res {
	case VerifyExpired:
		return VerifyEmailResult{}, ErrOTPExpired
	case VerifyMismatch:
		return VerifyEmailResult{}, ErrOTPMismatch
	case VerifyNotFound:
		return VerifyEmailResult{}, ErrOTPNotFound
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return VerifyEmailResult{}, ErrOTPNotFound
		}
		return VerifyEmailResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsVerified {
		now := s.clock.Now()
		if err := s.users.SetVerified(ctx, emailAddr, now); err != nil {
			return VerifyEmailResult{}, fmt.Errorf("mark verified: %w", err)
		}
		user.IsVerified = true
		user.UpdatedAt = now
	}

	result := VerifyEmailResult{User: user}
	if purpose == domain.PurposeResetPassword {
		result.ResetToken, err = s.tokens.IssueResetGrant(ctx, emailAddr)
		if err != nil {
			return VerifyEmailResult{}, fmt.Errorf("issue reset grant: %w", err)
		}
		return result, nil
	}
	result.Token, err = s.tokens.IssueSession(emailAddr)
	if err != nil {
		return VerifyEmailResult{}, fmt.Errorf("issue session: %w", err)
	}
	return result, nil
}

// ForgotPassword envia un codigo de reset si el email existe. La respuesta no
// revela si la cuenta existe.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr, err := s.normalizeAndValidateEmail(emailAddr)
	if err != nil {
		return err
	}
	return s.issueIfKnown(ctx, emailAddr, domain.PurposeResetPassword)
}

// ResendCode reemite un codigo para una cuenta existente. Igual que ForgotPassword,
// siempre responde exito.
func (s *AuthService) ResendCode(ctx context.Context, emailAddr string, purpose domain.Purpose) error {
	emailAddr, err := s.normalizeAndValidateEmail(emailAddr)
	if err != nil {
		return err
	}
	if purpose == "" {
		purpose = domain.PurposeVerifyRegistration
	}
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}
	return s.issueIfKnown(ctx, emailAddr, purpose)
}

func (s *AuthService) issueIfKnown(ctx context.Context, emailAddr string, purpose domain.Purpose) error {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Debug("code requested for unknown email", zap.String("purpose", string(purpose)))
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if purpose == domain.PurposeVerifyRegistration && user.IsVerified {
		return nil
	}
	if _, err := s.otp.Issue(ctx, emailAddr, purpose); err != nil {
		if errors.Is(err, ErrEmailSendFailure) {
			return nil
		}
		return err
	}
	return nil
}

// ResetPassword cambia el password usando la autorizacion emitida por VerifyEmail.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) (string, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return "", ErrInvalidEmail
	}
	if err := s.validatePassword(input.NewPassword); err != nil {
		return "", err
	}
	if strings.TrimSpace(input.ResetToken) == "" {
		return "", ErrUnauthorizedReset
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	// La autorizacion se canjea antes de escribir: un fallo del store despues de
	// este punto obliga a pedir un codigo nuevo, pero el grant nunca se reutiliza.
	if err := s.tokens.RedeemResetGrant(ctx, input.ResetToken, emailAddr); err != nil {
		if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
			return "", ErrUnauthorizedReset
		}
		return "", fmt.Errorf("redeem reset grant: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, emailAddr, hash, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUnauthorizedReset
		}
		return "", fmt.Errorf("update password: %w", err)
	}

	token, err := s.tokens.IssueSession(emailAddr)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	return token, nil
}

// Profile resuelve el usuario dueño del token de sesion.
func (s *AuthService) Profile(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return domain.User{}, ErrUnauthenticated
	}
	return s.ProfileByEmail(ctx, claims.Email)
}

func (s *AuthService) ProfileByEmail(ctx context.Context, emailAddr string) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.User{}, ErrUnauthenticated
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// UpdateProfile edita name, username y bio del usuario autenticado. El username se
// guarda en minusculas y es unico; una bio vacia se borra.
func (s *AuthService) UpdateProfile(ctx context.Context, emailAddr string, input ProfileUpdateInput) (domain.User, error) {
	user, err := s.ProfileByEmail(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}

	profile := user.Profile()
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return domain.User{}, ErrInvalidName
		}
		profile.Name = name
	}
	if input.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*input.Username))
		if s.validate.Var(username, "min=3,max=20") != nil {
			return domain.User{}, ErrInvalidUsername
		}
		profile.Username = username
	}
	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if s.validate.Var(bio, "max=500") != nil {
			return domain.User{}, ErrBioTooLong
		}
		profile.Bio = bio
	}

	now := s.clock.Now()
	if err := s.users.UpdateProfile(ctx, user.Email, profile, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return domain.User{}, ErrUsernameTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return domain.User{}, ErrUnauthenticated
		}
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	user.Name, user.Username, user.Bio = profile.Name, profile.Username, profile.Bio
	user.UpdatedAt = now
	return user, nil
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("otp-auth-timing-placeholder")
		if err != nil {
			s.logger.Warn("dummy hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) normalizeAndValidateEmail(raw string) (string, error) {
	emailAddr := normalizeEmail(raw)
	if emailAddr == "" || s.validate.Var(emailAddr, "email") != nil {
		return "", ErrInvalidEmail
	}
	return emailAddr, nil
}

func (s *AuthService) validatePassword(password string) error {
	if len(password) < s.minPasswordLen {
		return ErrWeakPassword
	}
	if len(password) > maxPasswordLen {
		return ErrPasswordTooLong
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
