package server

import (
	"log/slog"
	"time"

	"market-chat/auth"
	"market-chat/errors"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticate resolves the caller from "Authorization: Bearer <token>",
// or from the token query parameter since browsers cannot set headers on a websocket upgrade.
func Authenticate(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			abortWithError(c, errors.Unauthorized("authorization token is missing"))
			return
		}
		identity, err := tokens.ValidateToken(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity set by Authenticate.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

// RequestLogger logs every request once it is served.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
