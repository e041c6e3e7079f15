package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Accepted writes a 202 for work that continues after the response.
func Accepted(c *gin.Context, payload any) {
	JSON(c, http.StatusAccepted, payload)
}

// Fresh writes a 200 that clients and proxies must not cache. Progress
// snapshots change on every poll.
func Fresh(c *gin.Context, payload any) {
	c.Header("Cache-Control", "no-store")
	JSON(c, http.StatusOK, payload)
}
