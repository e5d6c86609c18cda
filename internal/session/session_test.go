package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supa-artistry/internal/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 43) // 32 bytes, unpadded base64
	assert.NotEqual(t, a, b)
}

func TestExpiredAndExtend(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{
		AbsoluteExpiresAt: now.Add(3 * time.Hour),
		ExpiresAt:         now.Add(time.Hour),
	}

	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Hour)))

	s = s.Extend(now.Add(30*time.Minute), 2*time.Hour)
	assert.Equal(t, now.Add(150*time.Minute), s.ExpiresAt)

	s = s.Extend(now.Add(2*time.Hour), 2*time.Hour)
	assert.Equal(t, s.AbsoluteExpiresAt, s.ExpiresAt, "extension is capped")
	assert.True(t, s.Expired(now.Add(3*time.Hour)))
}

func TestRedisStoreLifecycle(t *testing.T) {
	client, mr := newRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	sess := Session{
		SessionID: "sid-1",
		UserID:    "u_42",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, sess))
	assert.True(t, mr.Exists("session:sid-1"))

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u_42", got.UserID)

	sess.ExpiresAt = time.Now().Add(2 * time.Hour)
	require.NoError(t, store.Update(ctx, sess))
	assert.Greater(t, mr.TTL("session:sid-1"), time.Hour)

	require.NoError(t, store.Delete(ctx, "sid-1"))
	got, err = store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// update after delete does not resurrect the session
	require.NoError(t, store.Update(ctx, sess))
	assert.False(t, mr.Exists("session:sid-1"))
}

func TestRedisStoreCreateValidation(t *testing.T) {
	client, _ := newRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	assert.Error(t, store.Create(ctx, Session{UserID: "u"}))
	assert.Error(t, store.Create(ctx, Session{SessionID: "s", UserID: "u", ExpiresAt: time.Now().Add(-time.Minute)}))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "from-cookie", TokenFromRequest(r))
}

func TestSetAndClearCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookie(w, "sid", time.Now().Add(time.Hour), CookieOptions{Secure: true})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)

	w = httptest.NewRecorder()
	ClearCookie(w, CookieOptions{})
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestBusDeliversEvents(t *testing.T) {
	client, _ := newRedis(t)
	bus := NewBus(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "sid-1")
	require.NoError(t, err)
	defer sub.Close()

	user := &auth.User{ID: "u_42"}
	require.NoError(t, bus.Publish(ctx, "sid-2", Event{Type: EventSignedOut}))
	require.NoError(t, bus.Publish(ctx, "sid-1", Event{Type: EventTokenRefreshed, User: user}))

	select {
	case ev := <-sub.C:
		assert.Equal(t, EventTokenRefreshed, ev.Type)
		assert.Equal(t, user, ev.User)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
