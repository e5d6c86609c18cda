package middleware

import (
	"net/http"
	"strings"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	// SessionIDHeader carries the caller's active identifier: a guest
	// token for anonymous callers.
	SessionIDHeader = "X-Session-ID"

	principalKey   = "principal"
	maxGuestLength = 128
)

// Principal is whoever a demo request is attributed to.
type Principal struct {
	ID    string
	Guest bool
}

// PrincipalFrom returns the principal set by GinRequireIdentity.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// GinRequireIdentity admits authenticated sessions and guests. A live
// session always wins over a guest header.
func GinRequireIdentity(am *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := am.Authenticate(c.Request)
		if err != nil {
			logger.Error("session lookup failed", map[string]any{
				"error": err.Error(),
			})
		}

		if sess != nil {
			c.Set(UserIDKey, sess.UserID)
			c.Set(principalKey, Principal{ID: sess.UserID})
			c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), sess.UserID))
			c.Next()
			return
		}

		if guestID := c.GetHeader(SessionIDHeader); validGuestID(guestID) {
			c.Set(principalKey, Principal{ID: guestID, Guest: true})
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "sign in or continue as guest",
		})
	}
}

func validGuestID(id string) bool {
	if !strings.HasPrefix(id, auth.GuestPrefix) || len(id) <= len(auth.GuestPrefix) || len(id) > maxGuestLength {
		return false
	}
	for _, r := range id {
		if r > 0x7e || r < 0x21 {
			return false
		}
	}
	return true
}
