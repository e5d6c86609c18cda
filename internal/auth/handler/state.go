package handler

import (
	"net/http"
	"time"

	"supa-artistry/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	stateCookieName = "__oauth_state"
	pkceCookieName  = "__oauth_pkce"
	flowCookieTTL   = 5 * time.Minute
)

// setFlowCookie stores a short-lived OAuth flow value (state or PKCE verifier).
func (h *Handler) setFlowCookie(c *gin.Context, name string, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.policy.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(flowCookieTTL.Seconds()),
	})
}

func flowCookie(c *gin.Context, name string) string {
	cookie, err := c.Request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) generateState(c *gin.Context) (string, error) {
	state, err := session.RandomToken(32)
	if err != nil {
		return "", err
	}
	h.setFlowCookie(c, stateCookieName, state)
	return state, nil
}

func validateState(c *gin.Context) bool {
	stateQuery := c.Query("state")
	if stateQuery == "" {
		return false
	}
	return flowCookie(c, stateCookieName) == stateQuery
}
