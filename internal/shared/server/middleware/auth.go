package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"narrate-backend/internal/shared/auth"
	"narrate-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	userNameKey  = "userName"
	isGuestKey   = "isGuest"
)

// publicPaths are served without an identity.
var publicPaths = map[string]struct{}{
	"/api/v1/health": {},
	"/api/v1/plans":  {},
	"/metrics":       {},
}

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Auth validates bearer JWTs or the guest header and stores identity in context.
// With a nil verifier every bearer token is rejected and only guests get through.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" || verifier == nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(userIDKey, claims.Subject)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			if claims.Name != "" {
				c.Set(userNameKey, claims.Name)
			}
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		if guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id")); guestID != "" {
			c.Set(userIDKey, "guest:"+guestID)
			c.Set(isGuestKey, true)
			c.Next()
			return
		}

		if _, ok := publicPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	return contextString(c, userIDKey)
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	return contextString(c, userEmailKey)
}

// UserNameFromContext fetches the user name set by the auth middleware.
func UserNameFromContext(c *gin.Context) string {
	return contextString(c, userNameKey)
}

// IsGuest reports whether the caller identified with X-Guest-Id.
func IsGuest(c *gin.Context) bool {
	if c == nil {
		return false
	}
	return c.GetBool(isGuestKey)
}

func contextString(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
