package middleware

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/careloop/careteam/internal/auth"
	"github.com/careloop/careteam/internal/models"
	"github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/response"
)

// RequireRole restricts a route to callers holding one of the listed account roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		v, ok := c.Get(CtxClaimsKey)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, _ := v.(*iauth.Claims)
		if claims == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}
