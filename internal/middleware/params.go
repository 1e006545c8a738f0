package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
)

const paramKeyPrefix = "param:"

// RequireIDParam parses the named path parameter as a positive id and stores
// it for ParamID. Malformed ids never reach the handler.
func RequireIDParam(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param(name), 10, 64)
		if err != nil || id == 0 {
			apierrors.BadRequest(c, "Invalid "+name)
			c.Abort()
			return
		}

		c.Set(paramKeyPrefix+name, id)
		c.Next()
	}
}

// ParamID returns the id stored by RequireIDParam.
func ParamID(c *gin.Context, name string) uint64 {
	return c.GetUint64(paramKeyPrefix + name)
}
