package middleware

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/chore-reward-api/internal/auth"
	"github.com/yukikurage/chore-reward-api/internal/constants"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
)

// RequireAuth resolves the caller from a bearer token issued by the identity
// provider, or from the session established by an earlier token. A valid
// token also (re)binds the session to the user.
func RequireAuth(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		var (
			identity *auth.Identity
			err      error
		)
		if token, ok := bearerToken(c); ok {
			identity, err = authenticator.FromToken(token)
			if err == nil && sessionUserID(session) != identity.UserID {
				session.Set(constants.ContextKeyUserID, identity.UserID)
				if saveErr := session.Save(); saveErr != nil {
					apierrors.InternalError(c, "Failed to save session")
					c.Abort()
					return
				}
			}
		} else if userID := sessionUserID(session); userID != 0 {
			identity, err = authenticator.FromUserID(userID)
		} else {
			err = auth.ErrUnauthenticated
		}

		if err != nil {
			apierrors.Respond(c, err)
			c.Abort()
			return
		}

		// Store identity in context for easy access in handlers
		c.Set(constants.ContextKeyUserID, identity.UserID)
		c.Set(constants.ContextKeyIdentity, *identity)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func sessionUserID(session sessions.Session) uint64 {
	id, _ := toUint64(session.Get(constants.ContextKeyUserID))
	return id
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return toUint64(userID)
}

// GetIdentity retrieves the caller's identity from context
func GetIdentity(c *gin.Context) (auth.Identity, bool) {
	v, exists := c.Get(constants.ContextKeyIdentity)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}

// Session stores encode numbers differently, so accept the common integer types.
func toUint64(v interface{}) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
