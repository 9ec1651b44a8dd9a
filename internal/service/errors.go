package service

import "errors"

// ErrorKind es la clasificacion legible por maquina que viaja en las respuestas.
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION"
	KindDuplicateEmail     ErrorKind = "DUPLICATE_EMAIL"
	KindDuplicateUsername  ErrorKind = "DUPLICATE_USERNAME"
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindUnauthenticated    ErrorKind = "UNAUTHENTICATED"
	KindUnauthorizedReset  ErrorKind = "UNAUTHORIZED_RESET"
	KindExpired            ErrorKind = "EXPIRED"
	KindMismatch           ErrorKind = "MISMATCH"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInternal           ErrorKind = "INTERNAL"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too short")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrInvalidPurpose     = errors.New("invalid code purpose")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("invalid or expired token")
	ErrUnauthorizedReset  = errors.New("password reset not authorized")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrOTPMismatch        = errors.New("invalid verification code")
	ErrOTPNotFound        = errors.New("no active verification code")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrInvalidName        = errors.New("name cannot be empty")
	ErrInvalidUsername    = errors.New("username must be between 3 and 20 characters")
	ErrBioTooLong         = errors.New("bio must be at most 500 characters")
	ErrUsernameTaken      = errors.New("username already taken")
)

// KindOf clasifica un error devuelto por AuthService. Todo lo desconocido es INTERNAL.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrPasswordTooLong),
		errors.Is(err, ErrInvalidPurpose),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrBioTooLong):
		return KindValidation
	case errors.Is(err, ErrDuplicateEmail):
		return KindDuplicateEmail
	case errors.Is(err, ErrUsernameTaken):
		return KindDuplicateUsername
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrUnauthorizedReset):
		return KindUnauthorizedReset
	case errors.Is(err, ErrOTPExpired):
		return KindExpired
	case errors.Is(err, ErrOTPMismatch):
		return KindMismatch
	case errors.Is(err, ErrOTPNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
