package domain

import "time"

// Purpose indica que transicion autoriza un codigo.
type Purpose string

const (
	PurposeVerifyRegistration Purpose = "VERIFY_REGISTRATION"
	PurposeResetPassword      Purpose = "RESET_PASSWORD"
)

func (p Purpose) Valid() bool {
	return p == PurposeVerifyRegistration || p == PurposeResetPassword
}

// OneTimeCode es el codigo vivo para un par (email, purpose). Solo se guarda el hash.
type OneTimeCode struct {
	Email     string
	Purpose   Purpose
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LiveAt reporta si el codigo sigue vigente en now.
func (c OneTimeCode) LiveAt(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// ConsumeOutcome es el resultado de intentar consumir un codigo.
type ConsumeOutcome int

const (
	ConsumeNotFound ConsumeOutcome = iota
	ConsumeOK
	ConsumeExpired
	ConsumeMismatch
)

func (o ConsumeOutcome) String() string {
	switch o {
	case ConsumeOK:
		return "ok"
	case ConsumeExpired:
		return "expired"
	case ConsumeMismatch:
		return "mismatch"
	default:
		return "not_found"
	}
}
