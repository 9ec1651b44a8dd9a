package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otp-auth/internal/domain"
	"otp-auth/internal/service"
)

// envelope es el cuerpo comun de todas las respuestas.
type envelope struct {
	StatusCode           int       `json:"status_code"`
	Details              string    `json:"details"`
	IsSuccess            bool      `json:"is_success"`
	Token                string    `json:"token,omitempty"`
	ResetToken           string    `json:"reset_token,omitempty"`
	Error                string    `json:"error,omitempty"`
	VerificationRequired bool      `json:"verification_required,omitempty"`
	User                 *userView `json:"user,omitempty"`
}

type userView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Username   string    `json:"username,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func newUserView(u domain.User) *userView {
	return &userView{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Username:   u.Username,
		Bio:        u.Bio,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

func respond(c *gin.Context, status int, body envelope) {
	body.StatusCode = status
	body.IsSuccess = status < http.StatusBadRequest
	c.JSON(status, body)
}

func respondInvalid(c *gin.Context) {
	respond(c, http.StatusBadRequest, envelope{
		Details: "invalid request",
		Error:   string(service.KindValidation),
	})
}

// respondError traduce un error del servicio a status HTTP. Los INTERNAL se loguean
// y se responden con un mensaje generico.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	kind := service.KindOf(err)
	status := statusForKind(kind)
	details := err.Error()
	switch {
	case errors.Is(err, service.ErrEmailSendFailure):
		status = http.StatusServiceUnavailable
		details = "email delivery unavailable"
		logger.Warn(op+" failed", zap.Error(err))
	case kind == service.KindInternal:
		details = "internal error"
		logger.Error(op+" failed", zap.Error(err))
	}
	respond(c, status, envelope{Details: details, Error: string(kind)})
}

func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation, service.KindMismatch:
		return http.StatusBadRequest
	case service.KindDuplicateEmail, service.KindDuplicateUsername:
		return http.StatusConflict
	case service.KindInvalidCredentials, service.KindUnauthenticated, service.KindUnauthorizedReset:
		return http.StatusUnauthorized
	case service.KindExpired:
		return http.StatusGone
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
