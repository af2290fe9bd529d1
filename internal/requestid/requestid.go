package requestid

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID in both directions.
const Header = "X-Request-ID"

// ctxKey is the Gin context key used to store the request ID.
const ctxKey = "request_id"

// maxLen caps caller-supplied IDs so they cannot bloat log lines.
const maxLen = 128

// Middleware reuses a caller-supplied X-Request-ID or generates a UUID, stores
// it on the Gin context and echoes it on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(Header))
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}
		c.Set(ctxKey, id)
		c.Header(Header, id)
		c.Next()
	}
}

// ID returns the request ID from the Gin context, empty when unset.
func ID(c *gin.Context) string {
	v, _ := c.Get(ctxKey)
	s, _ := v.(string)
	return s
}
