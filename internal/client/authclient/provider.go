package authclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"supa-artistry/internal/client/identity"
	"supa-artistry/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

const (
	minReconnect = 500 * time.Millisecond
	maxReconnect = 30 * time.Second
	maxLineBytes = 1 << 20
)

// User is the account as the server returns it.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (u *User) identity() *identity.AuthIdentity {
	if u == nil || u.ID == "" {
		return nil
	}
	return &identity.AuthIdentity{ID: u.ID, Email: u.Email, Phone: u.Phone}
}

// SessionInfo is the result of a sign-in or refresh.
type SessionInfo struct {
	Status       string    `json:"status,omitempty"`
	SessionToken string    `json:"session_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// streamEvent is one NDJSON line of /auth/session/stream.
type streamEvent struct {
	Event     identity.EventType `json:"event"`
	User      *User              `json:"user"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

type subscriber struct {
	local chan identity.Event
	done  chan struct{}
}

// Provider is the server's auth API seen through identity.Provider. Sign-in
// and sign-out made through it are pushed to every subscriber.
type Provider struct {
	client *Client

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

func NewProvider(client *Client) *Provider {
	return &Provider{
		client: client,
		subs:   make(map[int]*subscriber),
	}
}

// CurrentSession asks the server who the stored token belongs to.
func (p *Provider) CurrentSession(ctx context.Context) (*identity.AuthIdentity, error) {
	token := p.client.Token()
	if token == "" {
		return nil, nil
	}

	var out struct {
		User *User `json:"user"`
	}
	if err := p.client.doJSON(ctx, http.MethodGet, "/auth/session", nil, &out, nil); err != nil {
		return nil, err
	}

	if out.User == nil {
		// the server forgot us; the token is useless now
		p.client.clearTokenIf(token)
	}
	return out.User.identity(), nil
}

// Subscribe starts an event feed. Its first event is the current session;
// while a token is held the feed follows the server's session stream.
func (p *Provider) Subscribe(ctx context.Context) (<-chan identity.Event, error) {
	sub := &subscriber{
		local: make(chan identity.Event, 4),
		done:  make(chan struct{}),
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = sub
	p.mu.Unlock()

	out := make(chan identity.Event, 4)

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(sub.done)
			close(out)
		}()
		p.run(ctx, sub, out)
	}()

	return out, nil
}

func (p *Provider) run(ctx context.Context, sub *subscriber, out chan<- identity.Event) {
	var (
		remote    <-chan identity.Event
		following string
		stop      = func() {}
	)
	defer func() { stop() }()

	follow := func(token string, skipInitial bool) {
		stop()
		sctx, cancel := context.WithCancel(ctx)
		stop = cancel
		following = token
		remote = p.follow(sctx, token, skipInitial)
	}

	if token := p.client.Token(); token != "" {
		follow(token, false)
	} else if !emit(ctx, out, identity.Event{Type: identity.EventInitialSession}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-sub.local:
			if ev.Identity != nil {
				follow(p.client.Token(), true)
			} else {
				stop()
				remote = nil
			}
			if !emit(ctx, out, ev) {
				return
			}

		case ev, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			if ev.Identity == nil {
				// signed out elsewhere or expired; a newer sign-in keeps its token
				p.client.clearTokenIf(following)
				stop()
				remote = nil
			}
			if !emit(ctx, out, ev) {
				return
			}
		}
	}
}

// follow reads the session stream for token until it signs out or ctx
// ends, reconnecting with exponential backoff when the connection drops.
func (p *Provider) follow(ctx context.Context, token string, skipInitial bool) <-chan identity.Event {
	events := make(chan identity.Event)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = minReconnect
	bo.MaxInterval = maxReconnect
	bo.MaxElapsedTime = 0

	connect := func() error {
		started := time.Now()
		ended, err := p.readStream(ctx, token, skipInitial, events)
		if ended || ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxReconnect {
			// a long-lived connection dropped; start over from the shortest wait
			bo.Reset()
		}
		// the first line after a reconnect catches up on anything missed
		skipInitial = false
		if err == nil {
			err = errors.New("session stream closed")
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("session stream interrupted", map[string]any{
			"error": err.Error(),
			"retry": wait.String(),
		})
	}

	go func() {
		defer close(events)
		_ = backoff.RetryNotify(connect, backoff.WithContext(bo, ctx), notify)
	}()

	return events
}

// readStream reads one connection. ended is true once the session is gone
// and the stream will not be reopened.
func (p *Provider) readStream(ctx context.Context, token string, skipInitial bool, events chan<- identity.Event) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.client.url("/auth/session/stream"), nil)
	if err != nil {
		return true, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := p.client.stream.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var se streamEvent
		if err := json.Unmarshal(line, &se); err != nil {
			return false, fmt.Errorf("decode session event: %w", err)
		}

		ev := identity.Event{Type: se.Event, Identity: se.User.identity()}
		if ev.Type == identity.EventSignedOut {
			ev.Identity = nil
		}

		skip := first && skipInitial && ev.Type == identity.EventInitialSession && ev.Identity != nil
		first = false
		if !skip && !emit(ctx, events, ev) {
			return true, ctx.Err()
		}

		if ev.Identity == nil {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// broadcast pushes a local sign-in or sign-out to every live subscriber.
func (p *Provider) broadcast(ev identity.Event) {
	p.mu.Lock()
	subs := make([]*subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		select {
		case s.local <- ev:
		case <-s.done:
		}
	}
}

// SignOut ends the server session and always drops the local token.
// Without a token it does nothing.
func (p *Provider) SignOut(ctx context.Context) error {
	if p.client.Token() == "" {
		return nil
	}

	err := p.client.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)

	p.client.clearToken()
	p.broadcast(identity.Event{Type: identity.EventSignedOut})

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates an email/password account and signs in with it.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*SessionInfo, error) {
	return p.signIn(ctx, "/auth/register", credentialsRequest{Email: email, Password: password})
}

// SignIn signs in with email and password.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*SessionInfo, error) {
	return p.signIn(ctx, "/auth/login", credentialsRequest{Email: email, Password: password})
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

// RequestOTP asks the server to text a code and returns the number in
// the form the server normalized it to.
func (p *Provider) RequestOTP(ctx context.Context, phone string) (string, error) {
	var out struct {
		Phone string `json:"phone"`
	}
	if err := p.client.doJSON(ctx, http.MethodPost, "/auth/otp", otpRequest{Phone: phone}, &out, nil); err != nil {
		return "", err
	}
	return out.Phone, nil
}

// VerifyOTP signs in with a texted code.
func (p *Provider) VerifyOTP(ctx context.Context, phone, code string) (*SessionInfo, error) {
	return p.signIn(ctx, "/auth/otp/verify", otpRequest{Phone: phone, Code: code})
}

// Refresh extends the held session. Subscribers hear about it through
// the server's TOKEN_REFRESHED event.
func (p *Provider) Refresh(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := p.client.doJSON(ctx, http.MethodPost, "/auth/refresh", nil, &info, nil); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *Provider) signIn(ctx context.Context, path string, body any) (*SessionInfo, error) {
	var info SessionInfo
	if err := p.client.doJSON(ctx, http.MethodPost, path, body, &info, nil); err != nil {
		return nil, err
	}
	if info.SessionToken == "" || info.User.identity() == nil {
		return nil, fmt.Errorf("%s: response carries no session", path)
	}

	p.client.setToken(info.SessionToken)
	p.broadcast(identity.Event{Type: identity.EventSignedIn, Identity: info.User.identity()})

	return &info, nil
}

func emit(ctx context.Context, ch chan<- identity.Event, ev identity.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
