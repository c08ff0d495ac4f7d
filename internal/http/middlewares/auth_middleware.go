package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/campushub/accounts/internal/auth"
	"github.com/campushub/accounts/internal/config"
	"github.com/campushub/accounts/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Keep these interfaces small so tests can fake them easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.AccessClaims, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	jwt   TokenVerifier
	users UserLoader
}

func NewAuthMiddleware(jwt TokenVerifier, users UserLoader) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, users: users}
}

const AccessTokenCookie = "accessToken"

// RequireAuth resolves the access token, preferring the cookie over the
// Authorization header, verifies it, and attaches the public view of the
// referenced user to the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFromRequest(c)

		if raw == "" {
			abortUnauthorized(c, "Unauthorized request")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)

		if err != nil {
			abortUnauthorized(c, "Invalid access token")
			return
		}

		cctx, cancel := config.WithTimeout(2 * time.Second)

		defer cancel()

		u, err := m.users.GetByID(cctx, claims.UserID)

		if err != nil {
			abortUnauthorized(c, "Invalid access token")
			return
		}

		c.Set(CtxUser, u.Public())

		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	}

	return ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"statusCode": http.StatusUnauthorized,
		"message":    message,
		"success":    false,
		"errors":     []string{},
	})
}

// UserFromContext returns the public user attached by RequireAuth.
func UserFromContext(c *gin.Context) (user.Public, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return user.Public{}, false
	}
	u, ok := v.(user.Public)
	return u, ok
}
