package middleware

import (
	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
)

// RequireParent rejects callers without the PARENT role before the handler
// runs. Services still check the caller's membership in the family.
func RequireParent() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, exists := GetIdentity(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		if !identity.IsParent() {
			apierrors.Forbidden(c, "Only parents can perform this action")
			c.Abort()
			return
		}

		c.Next()
	}
}
