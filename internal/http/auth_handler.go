package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otp-auth/internal/domain"
	"otp-auth/internal/service"
)

// AuthHandler expone los endpoints de autenticacion y perfil.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger: logger,
		auth:   auth,
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		respondInvalid(c)
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondError(c, h.logger, "register", err)
		return
	}
	respond(c, http.StatusCreated, envelope{
		Details: "verification code sent",
		User:    newUserView(user),
	})
}

// Login maneja POST /auth/login. Una cuenta sin verificar recibe 202 y un codigo nuevo.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		respondInvalid(c)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	if res.VerificationRequired {
		respond(c, http.StatusAccepted, envelope{
			Details:              "email not verified, verification code sent",
			VerificationRequired: true,
		})
		return
	}
	respond(c, http.StatusOK, envelope{
		Details: "login successful",
		Token:   res.Token,
		User:    newUserView(res.User),
	})
}

// VerifyEmail maneja POST /auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email   string `json:"email" binding:"required,email"`
		Code    string `json:"code" binding:"required"`
		Purpose string `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify request", zap.Error(err))
		respondInvalid(c)
		return
	}

	res, err := h.auth.VerifyEmail(c.Request.Context(), req.Email, req.Code, domain.Purpose(req.Purpose))
	if err != nil {
		respondError(c, h.logger, "verify email", err)
		return
	}
	body := envelope{
		Token:      res.Token,
		ResetToken: res.ResetToken,
		User:       newUserView(res.User),
	}
	if res.ResetToken != "" {
		body.Details = "code verified, password reset authorized"
	} else {
		body.Details = "email verified"
	}
	respond(c, http.StatusOK, body)
}

// ForgotPassword maneja POST /auth/forgot-password. La respuesta es la misma exista o no la cuenta.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		respondInvalid(c)
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, "forgot password", err)
		return
	}
	respond(c, http.StatusOK, envelope{Details: "if the account exists, a reset code was sent"})
}

// ResetPassword maneja POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		NewPassword string `json:"new_password" binding:"required"`
		ResetToken  string `json:"reset_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		respondInvalid(c)
		return
	}

	token, err := h.auth.ResetPassword(c.Request.Context(), service.ResetPasswordInput{
		Email:       req.Email,
		NewPassword: req.NewPassword,
		ResetToken:  req.ResetToken,
	})
	if err != nil {
		respondError(c, h.logger, "reset password", err)
		return
	}
	respond(c, http.StatusOK, envelope{Details: "password updated", Token: token})
}

// ResendCode maneja POST /auth/resend-code.
func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req struct {
		Email   string `json:"email" binding:"required,email"`
		Purpose string `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend request", zap.Error(err))
		respondInvalid(c)
		return
	}

	if err := h.auth.ResendCode(c.Request.Context(), req.Email, domain.Purpose(req.Purpose)); err != nil {
		respondError(c, h.logger, "resend code", err)
		return
	}
	respond(c, http.StatusOK, envelope{Details: "if the account exists, a code was sent"})
}

// Profile maneja GET /users/profile. Requiere JWTAuthMiddleware.
func (h *AuthHandler) Profile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respond(c, http.StatusUnauthorized, envelope{
			Details: service.ErrUnauthenticated.Error(),
			Error:   string(service.KindUnauthenticated),
		})
		return
	}
	user, err := h.auth.ProfileByEmail(c.Request.Context(), claims.Email)
	if err != nil {
		respondError(c, h.logger, "profile", err)
		return
	}
	respond(c, http.StatusOK, envelope{Details: "profile", User: newUserView(user)})
}

// UpdateProfile maneja PUT /users/profile. Los campos ausentes no se modifican.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respond(c, http.StatusUnauthorized, envelope{
			Details: service.ErrUnauthenticated.Error(),
			Error:   string(service.KindUnauthenticated),
		})
		return
	}
	var req struct {
		Name     *string `json:"name"`
		Username *string `json:"username"`
		Bio      *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid profile update request", zap.Error(err))
		respondInvalid(c)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), claims.Email, service.ProfileUpdateInput{
		Name:     req.Name,
		Username: req.Username,
		Bio:      req.Bio,
	})
	if err != nil {
		respondError(c, h.logger, "update profile", err)
		return
	}
	respond(c, http.StatusOK, envelope{Details: "profile updated", User: newUserView(user)})
}
