package handler

import (
	"context"
	"net/http"
	"time"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/auth/provider"
	"supa-artistry/internal/auth/resolver"
	"supa-artistry/internal/logger"
	"supa-artistry/internal/session"

	"github.com/gin-gonic/gin"
)

// CredentialService registers and checks email/password accounts.
type CredentialService interface {
	Register(ctx context.Context, email string, password string) (string, error)
	Authenticate(ctx context.Context, email string, password string) (string, error)
}

// OTPService issues and checks SMS verification codes.
type OTPService interface {
	Request(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, phone string, code string) (*auth.Identity, error)
}

// UserReader loads the public user record for a session.
type UserReader interface {
	Get(ctx context.Context, userID string) (*auth.User, error)
}

// SessionPolicy controls session lifetimes and cookie flags.
type SessionPolicy struct {
	TTL          time.Duration // absolute lifetime
	Idle         time.Duration // sliding window, refreshed by /auth/refresh
	CookieSecure bool
}

type Deps struct {
	Providers    *provider.Registry
	SessionStore session.Store
	Bus          *session.Bus
	Resolver     resolver.Resolver
	Credentials  CredentialService
	OTP          OTPService
	Users        UserReader
	Policy       SessionPolicy
}

type Handler struct {
	providers         *provider.Registry
	sessionStore      session.Store
	bus               *session.Bus
	resolver          resolver.Resolver
	credentialService CredentialService
	otp               OTPService
	users             UserReader
	policy            SessionPolicy
	now               func() time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		providers:         deps.Providers,
		sessionStore:      deps.SessionStore,
		bus:               deps.Bus,
		resolver:          deps.Resolver,
		credentialService: deps.Credentials,
		otp:               deps.OTP,
		users:             deps.Users,
		policy:            deps.Policy,
		now:               time.Now,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/otp", h.RequestOTP)
	r.POST("/auth/otp/verify", h.VerifyOTP)

	r.GET("/auth/session", h.Session)
	r.GET("/auth/session/stream", h.Stream)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
}

func (h *Handler) cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Secure:   h.policy.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// issueSession creates a session for userID, sets the cookie and writes
// the token response non-browser clients keep.
func (h *Handler) issueSession(c *gin.Context, userID string, status int, label string) {
	sessionID, err := session.GenerateID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	now := h.now()
	sess := session.Session{
		SessionID:         sessionID,
		UserID:            userID,
		CreatedAt:         now,
		AbsoluteExpiresAt: now.Add(h.policy.TTL),
	}.Extend(now, h.policy.Idle)

	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		logger.Error("session persist failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist session"})
		return
	}

	session.SetCookie(c.Writer, sessionID, sess.AbsoluteExpiresAt, h.cookieOptions())

	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		// the session is valid either way; the client can re-read it
		logger.Warn("user lookup after sign-in failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		user = &auth.User{ID: userID}
	}

	logger.Info("session issued", map[string]any{
		"user_id": userID,
		"via":     label,
		"ip":      c.ClientIP(),
	})

	c.JSON(status, gin.H{
		"status":        label,
		"session_token": sessionID,
		"expires_at":    sess.ExpiresAt,
		"user":          user,
	})
}
