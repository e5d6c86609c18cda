package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/logger"
	"supa-artistry/internal/session"

	"github.com/gin-gonic/gin"
)

// current returns the live session carried by the request, if any.
// Expired sessions are removed on sight.
func (h *Handler) current(c *gin.Context) (*session.Session, error) {
	token := session.TokenFromRequest(c.Request)
	if token == "" {
		return nil, nil
	}

	sess, err := h.sessionStore.Get(c.Request.Context(), token)
	if err != nil || sess == nil {
		return nil, err
	}

	if sess.Expired(h.now()) {
		_ = h.sessionStore.Delete(c.Request.Context(), token)
		return nil, nil
	}

	return sess, nil
}

func (h *Handler) userFor(c *gin.Context, sess *session.Session) *auth.User {
	user, err := h.users.Get(c.Request.Context(), sess.UserID)
	if err != nil {
		return &auth.User{ID: sess.UserID}
	}
	return user
}

// Session reports the caller's current session. Anonymous callers get
// {"user": null}, not a 401: "no session" is a valid answer.
func (h *Handler) Session(c *gin.Context) {
	sess, err := h.current(c)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       h.userFor(c, sess),
		"expires_at": sess.ExpiresAt,
	})
}

// Stream pushes session changes as newline-delimited JSON. The first line
// is always INITIAL_SESSION; the stream ends after SIGNED_OUT.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	sess, err := h.current(c)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	write := func(ev session.Event) bool {
		if err := enc.Encode(ev); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	if sess == nil {
		write(session.Event{Type: session.EventInitialSession})
		return
	}

	// Subscribe before the initial line so nothing published in between is lost.
	sub, err := h.bus.Subscribe(ctx, sess.SessionID)
	if err != nil {
		logger.Error("session stream subscribe failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	defer sub.Close()

	user := h.userFor(c, sess)
	expiresAt := sess.ExpiresAt
	if !write(session.Event{Type: session.EventInitialSession, User: user, ExpiresAt: &expiresAt}) {
		return
	}

	expiry := time.NewTimer(time.Until(expiresAt))
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.ExpiresAt != nil {
				expiry.Reset(time.Until(*ev.ExpiresAt))
			}
			if !write(ev) || ev.Type == session.EventSignedOut {
				return
			}

		case <-expiry.C:
			// another instance may have refreshed it
			live, err := h.current(c)
			if err == nil && live != nil {
				expiry.Reset(time.Until(live.ExpiresAt))
				continue
			}
			write(session.Event{Type: session.EventSignedOut})
			return
		}
	}
}

// Refresh slides the session expiry and notifies watching clients.
func (h *Handler) Refresh(c *gin.Context) {
	sess, err := h.current(c)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	next := sess.Extend(h.now(), h.policy.Idle)
	if err := h.sessionStore.Update(c.Request.Context(), next); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	user := h.userFor(c, sess)
	expiresAt := next.ExpiresAt
	if err := h.bus.Publish(c.Request.Context(), sess.SessionID, session.Event{
		Type:      session.EventTokenRefreshed,
		User:      user,
		ExpiresAt: &expiresAt,
	}); err != nil {
		logger.Warn("session event publish failed", map[string]any{
			"event": string(session.EventTokenRefreshed),
			"error": err.Error(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       user,
		"expires_at": expiresAt,
	})
}

// Logout is idempotent: unknown or missing sessions still get 204.
func (h *Handler) Logout(c *gin.Context) {
	if token := session.TokenFromRequest(c.Request); token != "" {
		// best-effort: the cookie is cleared regardless
		if err := h.sessionStore.Delete(c.Request.Context(), token); err != nil {
			logger.Warn("session delete failed", map[string]any{
				"error": err.Error(),
			})
		}

		if err := h.bus.Publish(c.Request.Context(), token, session.Event{
			Type: session.EventSignedOut,
		}); err != nil {
			logger.Warn("session event publish failed", map[string]any{
				"event": string(session.EventSignedOut),
				"error": err.Error(),
			})
		}

		logger.Info("logout", map[string]any{
			"ip": c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, h.cookieOptions())

	c.Status(http.StatusNoContent)
}
