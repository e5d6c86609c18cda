package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/logger"

	"github.com/nyaruka/phonenumbers"
	"github.com/redis/go-redis/v9"
)

const (
	codeDigits  = 6
	maxAttempts = 5
	keyPrefix   = "otp:"
)

// attemptScript counts a verification attempt and returns the count with
// the stored code. A missing challenge is never recreated.
var attemptScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
local n = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {n, redis.call("HGET", KEYS[1], "code")}
`)

var (
	ErrInvalidPhone    = errors.New("please enter a valid phone number")
	ErrInvalidCode     = errors.New("invalid or expired verification code")
	ErrTooManyAttempts = errors.New("too many verification attempts")
)

// Sender delivers a verification code to a phone number.
type Sender interface {
	Send(ctx context.Context, phone string, code string) error
}

// LogSender writes codes to the service log. Development only.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone string, code string) error {
	logger.Info("otp issued", map[string]any{
		"phone": phone,
		"code":  code,
	})
	return nil
}

// Service issues and verifies SMS one-time codes backed by Redis.
type Service struct {
	client *redis.Client
	sender Sender
	ttl    time.Duration
	region string
}

func NewService(client *redis.Client, sender Sender, ttl time.Duration, region string) *Service {
	return &Service{
		client: client,
		sender: sender,
		ttl:    ttl,
		region: region,
	}
}

// NormalizePhone validates raw input and returns it in E.164 form.
func NormalizePhone(raw string, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Request issues a fresh code for the phone number, replacing any pending one.
func (s *Service) Request(ctx context.Context, rawPhone string) (string, error) {
	phone, err := NormalizePhone(rawPhone, s.region)
	if err != nil {
		return "", err
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}

	key := keyPrefix + phone
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "code", code, "attempts", 0)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("otp: store challenge: %w", err)
	}

	if err := s.sender.Send(ctx, phone, code); err != nil {
		_ = s.client.Del(ctx, key).Err()
		return "", fmt.Errorf("otp: send: %w", err)
	}

	return phone, nil
}

// Verify checks the code and, on success, consumes the challenge and
// returns the phone identity it proves.
func (s *Service) Verify(ctx context.Context, rawPhone string, code string) (*auth.Identity, error) {
	phone, err := NormalizePhone(rawPhone, s.region)
	if err != nil {
		return nil, err
	}

	key := keyPrefix + phone
	res, err := attemptScript.Run(ctx, s.client, []string{key}).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("otp: record attempt: %w", err)
	}

	attempts, _ := res[0].(int64)
	stored, _ := res[1].(string)

	// the exhausted challenge stays until it expires, locking the number
	if attempts > maxAttempts {
		return nil, ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return nil, ErrInvalidCode
	}

	// only the caller that deletes the challenge gets to use it
	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("otp: consume challenge: %w", err)
	}
	if deleted == 0 {
		return nil, ErrInvalidCode
	}

	return &auth.Identity{
		Provider:       auth.ProviderPhone,
		ProviderUserID: phone,
		Phone:          phone,
	}, nil
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
