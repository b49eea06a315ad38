package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/ragserve/internal/pkg/errcode"
	"github.com/ragserve/ragserve/internal/pkg/jwt"
	"github.com/ragserve/ragserve/internal/pkg/response"
)

const ContextOperatorKey = "operator"

// JWTAuth guards mutating endpoints. Tokens are minted offline with the
// `token` subcommand using the same secret.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextOperatorKey, claims.Name)
		c.Next()
	}
}
