package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"otp-auth/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el token de sesion Bearer y guarda los claims en el contexto.
func JWTAuthMiddleware(tokens service.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			respond(c, http.StatusInternalServerError, envelope{
				Details: "jwt not configured",
				Error:   string(service.KindInternal),
			})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
			unauthenticated(c, "missing token")
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := tokens.ParseSession(token)
		if err != nil {
			unauthenticated(c, service.ErrUnauthenticated.Error())
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func unauthenticated(c *gin.Context, details string) {
	respond(c, http.StatusUnauthorized, envelope{
		Details: details,
		Error:   string(service.KindUnauthenticated),
	})
	c.Abort()
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
