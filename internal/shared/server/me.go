package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"narrate-backend/internal/shared/server/middleware"
	"narrate-backend/internal/shared/server/respond"
)

// identity is the caller as resolved by the auth middleware.
type identity struct {
	UserID  string `json:"userId"`
	IsGuest bool   `json:"isGuest"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", func(c *gin.Context) {
		id := identity{
			UserID:  middleware.UserIDFromContext(c),
			IsGuest: middleware.IsGuest(c),
			Email:   middleware.UserEmailFromContext(c),
			Name:    middleware.UserNameFromContext(c),
		}
		// Auth already rejects anonymous calls; this guards direct mounts.
		if id.UserID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		respond.OK(c, id)
	})
}
