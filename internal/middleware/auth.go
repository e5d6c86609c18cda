package middleware

import (
	"context"
	"net/http"
	"time"

	"supa-artistry/internal/session"
)

// unexported, collision-proof context key
type userIDContextKeyType struct{}

var userIDKey = userIDContextKeyType{}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// WithUserID returns ctx carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

type AuthMiddleware struct {
	Store session.Store
	now   func() time.Time
}

func NewAuthMiddleware(store session.Store) *AuthMiddleware {
	return &AuthMiddleware{Store: store, now: time.Now}
}

// Authenticate loads the live session carried by r, or nil when the
// request is anonymous or its session is gone. Expired sessions are deleted.
func (a *AuthMiddleware) Authenticate(r *http.Request) (*session.Session, error) {
	sessionID := session.TokenFromRequest(r)
	if sessionID == "" {
		return nil, nil
	}

	sess, err := a.Store.Get(r.Context(), sessionID)
	if err != nil || sess == nil {
		return nil, err
	}

	if sess.Expired(a.now()) {
		_ = a.Store.Delete(r.Context(), sessionID)
		return nil, nil
	}

	return sess, nil
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.Authenticate(r)
		if err != nil || sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), sess.UserID)))
	})
}
