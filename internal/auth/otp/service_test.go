package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"supa-artistry/internal/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	phone string
	code  string
	err   error
}

func (c *captureSender) Send(_ context.Context, phone string, code string) error {
	c.phone, c.code = phone, code
	return c.err
}

func newService(t *testing.T) (*Service, *captureSender, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sender := &captureSender{}
	return NewService(client, sender, 5*time.Minute, "US"), sender, mr
}

func TestNormalizePhone(t *testing.T) {
	phone, err := NormalizePhone("+1 201-555-0123", "US")
	require.NoError(t, err)
	assert.Equal(t, "+12015550123", phone)

	phone, err = NormalizePhone("(201) 555-0123", "US")
	require.NoError(t, err)
	assert.Equal(t, "+12015550123", phone)

	_, err = NormalizePhone("12345", "US")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = NormalizePhone("not a phone", "US")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestRequestAndVerify(t *testing.T) {
	svc, sender, mr := newService(t)
	ctx := context.Background()

	phone, err := svc.Request(ctx, "+1 201-555-0123")
	require.NoError(t, err)
	assert.Equal(t, "+12015550123", phone)
	assert.Equal(t, phone, sender.phone)
	assert.Len(t, sender.code, codeDigits)
	assert.Equal(t, 5*time.Minute, mr.TTL(keyPrefix+phone))

	identity, err := svc.Verify(ctx, "+12015550123", sender.code)
	require.NoError(t, err)
	assert.Equal(t, &auth.Identity{
		Provider:       auth.ProviderPhone,
		ProviderUserID: phone,
		Phone:          phone,
	}, identity)

	// codes are single use
	_, err = svc.Verify(ctx, phone, sender.code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyWrongCodeLimitsAttempts(t *testing.T) {
	svc, sender, _ := newService(t)
	ctx := context.Background()

	phone, err := svc.Request(ctx, "+12015550123")
	require.NoError(t, err)

	wrong := "000000"
	if sender.code == wrong {
		wrong = "111111"
	}

	for i := 0; i < maxAttempts; i++ {
		_, err := svc.Verify(ctx, phone, wrong)
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err = svc.Verify(ctx, phone, sender.code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestVerifyExpired(t *testing.T) {
	svc, sender, mr := newService(t)
	ctx := context.Background()

	phone, err := svc.Request(ctx, "+12015550123")
	require.NoError(t, err)

	mr.FastForward(6 * time.Minute)

	_, err = svc.Verify(ctx, phone, sender.code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRequestSendFailureDropsChallenge(t *testing.T) {
	svc, sender, mr := newService(t)
	sender.err = errors.New("sms gateway down")

	_, err := svc.Request(context.Background(), "+12015550123")
	require.Error(t, err)
	assert.False(t, mr.Exists(keyPrefix+"+12015550123"))
}

func TestVerifyConcurrentAttemptsAreCapped(t *testing.T) {
	svc, sender, _ := newService(t)
	ctx := context.Background()

	phone, err := svc.Request(ctx, "+12015550123")
	require.NoError(t, err)

	wrong := "000000"
	if sender.code == wrong {
		wrong = "111111"
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
		tooMany int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(ctx, phone, wrong)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrInvalidCode):
				invalid++
			case errors.Is(err, ErrTooManyAttempts):
				tooMany++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, maxAttempts, invalid)
	assert.Equal(t, 50-maxAttempts, tooMany)

	// the real code no longer works once the cap is hit
	_, err = svc.Verify(ctx, phone, sender.code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestVerifyDoesNotRecreateConsumedChallenge(t *testing.T) {
	svc, sender, mr := newService(t)
	ctx := context.Background()

	phone, err := svc.Request(ctx, "+12015550123")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, phone, sender.code)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, phone, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, mr.Exists(keyPrefix+phone))
}
